package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/spyfall-game/sessionclient/internal/types"
)

// Derived views: pure functions over a snapshot, recomputed on every
// read. Time-left is never stored or ticked; it falls out of
// timer_end - now at the moment somebody asks.

// TimeLeft returns the remaining game time, clamped at zero.
func TimeLeft(r *types.RoomState, now time.Time) time.Duration {
	if r == nil || r.TimerEnd == nil {
		return 0
	}
	left := time.Unix(*r.TimerEnd, 0).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Countdown formats the remaining time as MM:SS, or "--:--" when no
// timer is running.
func Countdown(r *types.RoomState, now time.Time) string {
	if r == nil || r.TimerEnd == nil {
		return "--:--"
	}
	left := TimeLeft(r, now).Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(left.Minutes()), int(left.Seconds())%60)
}

// OrderedPlayers returns the roster in stable user-id order. The wire
// map is unordered, the UI wants a stable list.
func OrderedPlayers(r *types.RoomState) []types.Player {
	if r == nil {
		return nil
	}
	players := make([]types.Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	return players
}

// IsCreator reports whether userID owns the room. Gates moderation
// actions like kicking.
func IsCreator(r *types.RoomState, userID uint) bool {
	return r != nil && r.CreatedBy == userID
}

// HasVoted reports whether the authority has recorded a vote from
// userID in the current voting round.
func HasVoted(r *types.RoomState, userID uint) bool {
	if r == nil || r.Voting == nil {
		return false
	}
	if _, ok := r.Voting.Votes[userID]; ok {
		return true
	}
	p, ok := r.Players[userID]
	return ok && p.IsVoted
}

// VoteTarget returns the player currently under challenge.
func VoteTarget(r *types.RoomState) (types.Player, bool) {
	if r == nil || r.Voting == nil {
		return types.Player{}, false
	}
	p, ok := r.Players[r.Voting.TargetUserID]
	return p, ok
}

// HasVoted on the Store also folds in the optimistic overlay, so the
// UI can disable the vote buttons the instant the command goes out.
func (s *Store) HasVoted() bool {
	return s.voteCast || HasVoted(s.room, s.localUserID)
}
