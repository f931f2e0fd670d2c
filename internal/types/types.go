package types

import (
	"encoding/json"
	"time"
)

// Message is the frame envelope used in both directions. Payload stays
// raw until the dispatcher knows which shape to decode it into.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Server -> client frame tags.
const (
	MsgRoomState     = "room_state"
	MsgRoomUpdate    = "room_update" // alias the authority emits for room_state
	MsgGameStarted   = "game_started"
	MsgError         = "error"
	MsgPlayerJoined  = "player_joined"
	MsgPlayerLeft    = "player_left"
	MsgVotingStarted = "voting_started"
	MsgVotingResult  = "voting_result"
	MsgGameFinished  = "game_finished"
)

// Client -> server command tags.
const (
	CmdJoinRoom   = "join_room"
	CmdSetReady   = "set_ready"
	CmdVoteStart  = "vote_start"
	CmdVoteAnswer = "vote_answer"
	CmdSpyGuess   = "spy_guess"
	CmdKickPlayer = "kick_player"
)

type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusPlaying  GameStatus = "playing"
	StatusVoting   GameStatus = "voting"
	StatusFinished GameStatus = "finished"
)

type PlayerRole string

const (
	RoleSpy   PlayerRole = "spy"
	RoleLocal PlayerRole = "local"
)

const (
	WinnerSpy    = "spy"
	WinnerLocals = "locals"
)

type Player struct {
	UserID       uint       `json:"user_id"`
	TgID         int64      `json:"tg_id"`
	Username     string     `json:"username"`
	AvatarURL    string     `json:"avatar_url"`
	Role         PlayerRole `json:"role,omitempty"`
	Location     string     `json:"location,omitempty"`
	LocationRole string     `json:"location_role,omitempty"`
	IsReady      bool       `json:"is_ready"`
	IsVoted      bool       `json:"is_voted,omitempty"`
	Vote         bool       `json:"vote,omitempty"`
}

type LocationInfo struct {
	Name     string   `json:"name"`
	ImageURL string   `json:"image_url"`
	Roles    []string `json:"roles"`
}

type VotingState struct {
	TargetUserID uint          `json:"target_user_id"`
	Votes        map[uint]bool `json:"votes"`
	StartedAt    time.Time     `json:"started_at"`
}

// RoomState is one full snapshot of a room as streamed by the
// authority. TimerEnd travels as unix seconds.
type RoomState struct {
	RoomID     string          `json:"room_id"`
	Status     GameStatus      `json:"status"`
	Players    map[uint]Player `json:"players"`
	Location   *LocationInfo   `json:"location,omitempty"`
	SpyIDs     []uint          `json:"spy_ids,omitempty"`
	TimerEnd   *int64          `json:"timer_end,omitempty"`
	Voting     *VotingState    `json:"voting,omitempty"`
	Winner     string          `json:"winner,omitempty"`
	DeckID     uint            `json:"deck_id"`
	DeckName   string          `json:"deck_name"`
	MaxPlayers int             `json:"max_players"`
	SpyCount   int             `json:"spy_count"`
	Duration   int             `json:"duration"`
	CreatedBy  uint            `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RoleSecret is the private role assignment for the local player.
// Location fields are present only for non-spies.
type RoleSecret struct {
	Role         PlayerRole `json:"role"`
	Location     string     `json:"location,omitempty"`
	LocationRole string     `json:"location_role,omitempty"`
}

type GameStartedPayload struct {
	RoomID   string     `json:"room_id"`
	MyRole   RoleSecret `json:"my_role"`
	TimerEnd int64      `json:"timer_end"`
	SpyCount int        `json:"spy_count"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Outbound command payloads.

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type SetReadyPayload struct {
	Ready bool `json:"ready"`
}

type VoteStartPayload struct {
	TargetUserID uint `json:"target_user_id"`
}

type VoteAnswerPayload struct {
	Vote bool `json:"vote"`
}

type SpyGuessPayload struct {
	Location string `json:"location"`
}

type KickPlayerPayload struct {
	TargetUserID uint `json:"target_user_id"`
}
