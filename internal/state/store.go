package state

import (
	"errors"
	"fmt"

	"github.com/spyfall-game/sessionclient/internal/codec"
	"github.com/spyfall-game/sessionclient/internal/types"
)

// ErrUnexpectedTransition flags a status change the protocol does not
// allow. The snapshot is still applied (the authority wins); the caller
// decides whether to log.
var ErrUnexpectedTransition = errors.New("unexpected status transition")

// Store is the client's local projection of one room. The only
// mutation entry point is Apply; everything else reads. It is owned by
// a single session loop and needs no locking.
type Store struct {
	localUserID uint
	room        *types.RoomState
	secret      *types.RoleSecret

	// Optimistic overlay: set when the local player casts a vote,
	// cleared once a snapshot confirms (or the voting round ends).
	voteCast bool
}

func New(localUserID uint) *Store {
	return &Store{localUserID: localUserID}
}

// Apply folds one decoded event into the projection. Snapshots replace
// the room wholesale, never merge.
func (s *Store) Apply(ev codec.Event) error {
	switch ev := ev.(type) {
	case codec.SnapshotReceived:
		return s.applySnapshot(ev.State)

	case codec.GameStarted:
		secret := ev.MyRole
		s.secret = &secret
		if s.room != nil {
			s.room.Status = types.StatusPlaying
			end := ev.TimerEnd
			s.room.TimerEnd = &end
			if ev.SpyCount > 0 {
				s.room.SpyCount = ev.SpyCount
			}
			s.room.Voting = nil
		}
		return nil

	default:
		// error / unhandled frames never touch room state
		return nil
	}
}

func (s *Store) applySnapshot(st types.RoomState) error {
	scrub(&st)

	var warn error
	if s.room != nil && !legalTransition(s.room.Status, st.Status) {
		warn = fmt.Errorf("%w: %s -> %s", ErrUnexpectedTransition, s.room.Status, st.Status)
	}

	s.room = &st
	s.reconcileOverlay()
	return warn
}

// scrub drops every piece of role information a snapshot must not
// expose before the post-game reveal. The local player's own role
// arrives only through the game_started secret, so before "finished"
// no player entry carries a role at all.
func scrub(st *types.RoomState) {
	// the authority keeps sending the last voting round even in its
	// finished snapshot; the sub-state ends with the voting status
	if st.Status != types.StatusVoting {
		st.Voting = nil
	}
	if st.Status == types.StatusFinished {
		return
	}
	for id, p := range st.Players {
		p.Role = ""
		p.Location = ""
		p.LocationRole = ""
		st.Players[id] = p
	}
	st.SpyIDs = nil
	st.Location = nil
	st.Winner = ""
}

// legalTransition encodes waiting -> playing -> {voting <-> playing}* -> finished.
func legalTransition(from, to types.GameStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case types.StatusWaiting:
		return to == types.StatusPlaying
	case types.StatusPlaying:
		return to == types.StatusVoting || to == types.StatusFinished
	case types.StatusVoting:
		return to == types.StatusPlaying || to == types.StatusFinished
	default:
		return false
	}
}

// MarkVoteCast records the optimistic "I voted" flag after a
// vote_answer command went out.
func (s *Store) MarkVoteCast() {
	s.voteCast = true
}

func (s *Store) reconcileOverlay() {
	if !s.voteCast || s.room == nil {
		return
	}
	if s.room.Voting == nil {
		// voting round over, nothing left to confirm
		s.voteCast = false
		return
	}
	if p, ok := s.room.Players[s.localUserID]; ok && p.IsVoted {
		s.voteCast = false
	}
	if _, ok := s.room.Voting.Votes[s.localUserID]; ok {
		s.voteCast = false
	}
}

// Room returns a deep copy of the current snapshot, or nil before the
// first one arrives.
func (s *Store) Room() *types.RoomState {
	if s.room == nil {
		return nil
	}
	cp := *s.room
	cp.Players = make(map[uint]types.Player, len(s.room.Players))
	for id, p := range s.room.Players {
		cp.Players[id] = p
	}
	if s.room.TimerEnd != nil {
		end := *s.room.TimerEnd
		cp.TimerEnd = &end
	}
	if s.room.Location != nil {
		loc := *s.room.Location
		loc.Roles = append([]string(nil), s.room.Location.Roles...)
		cp.Location = &loc
	}
	if s.room.Voting != nil {
		v := *s.room.Voting
		v.Votes = make(map[uint]bool, len(s.room.Voting.Votes))
		for id, vote := range s.room.Voting.Votes {
			v.Votes[id] = vote
		}
		cp.Voting = &v
	}
	cp.SpyIDs = append([]uint(nil), s.room.SpyIDs...)
	return &cp
}

// Secret returns the local role assignment, or nil before game start.
func (s *Store) Secret() *types.RoleSecret {
	if s.secret == nil {
		return nil
	}
	cp := *s.secret
	return &cp
}

func (s *Store) LocalUserID() uint { return s.localUserID }

func (s *Store) VoteCast() bool { return s.voteCast }

// Reset wipes the projection and the role secret. Called on session
// teardown so nothing private outlives the room.
func (s *Store) Reset() {
	s.room = nil
	s.secret = nil
	s.voteCast = false
}
