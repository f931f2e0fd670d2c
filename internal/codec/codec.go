package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spyfall-game/sessionclient/internal/types"
)

var ErrBadFrame = errors.New("malformed frame")

// Event is the decoded form of one inbound frame. Every frame maps to
// exactly one variant; frames the client has no business reacting to
// come out as Unhandled so an unknown tag can never fail the session.
type Event interface{ isEvent() }

// SnapshotReceived carries a full room snapshot that wholesale-replaces
// the local projection.
type SnapshotReceived struct {
	State types.RoomState
}

// GameStarted carries the local player's private role assignment plus
// the timer deadline.
type GameStarted struct {
	RoomID   string
	MyRole   types.RoleSecret
	TimerEnd int64
	SpyCount int
}

// ServerError is an explicit error frame from the authority. The
// session stays connected.
type ServerError struct {
	Message string
}

// Unhandled is any frame the client ignores.
type Unhandled struct {
	Type string
}

func (SnapshotReceived) isEvent() {}
func (GameStarted) isEvent()      {}
func (ServerError) isEvent()      {}
func (Unhandled) isEvent()        {}

// Decode routes one inbound frame to its event variant. A frame that
// cannot be parsed returns an error wrapping ErrBadFrame; the caller
// logs and drops it.
func Decode(data []byte) (Event, error) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	switch msg.Type {
	case types.MsgRoomState, types.MsgRoomUpdate:
		var st types.RoomState
		if err := json.Unmarshal(msg.Payload, &st); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrBadFrame, msg.Type, err)
		}
		return SnapshotReceived{State: st}, nil

	case types.MsgGameStarted:
		var p types.GameStartedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrBadFrame, msg.Type, err)
		}
		return GameStarted{RoomID: p.RoomID, MyRole: p.MyRole, TimerEnd: p.TimerEnd, SpyCount: p.SpyCount}, nil

	case types.MsgError:
		var p types.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrBadFrame, msg.Type, err)
		}
		return ServerError{Message: p.Message}, nil

	case types.MsgPlayerJoined, types.MsgPlayerLeft, types.MsgVotingStarted,
		types.MsgVotingResult, types.MsgGameFinished:
		// These tags sometimes carry the whole room; only then do they
		// matter, and then they are just snapshots.
		var st types.RoomState
		if err := json.Unmarshal(msg.Payload, &st); err != nil || st.RoomID == "" {
			return Unhandled{Type: msg.Type}, nil
		}
		return SnapshotReceived{State: st}, nil

	default:
		return Unhandled{Type: msg.Type}, nil
	}
}

// EncodeCommand builds an outbound command frame.
func EncodeCommand(cmdType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", cmdType, err)
	}
	return json.Marshal(types.Message{Type: cmdType, Payload: raw})
}
