package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spyfall-game/sessionclient/internal/codec"
	"github.com/spyfall-game/sessionclient/internal/logging"
	"github.com/spyfall-game/sessionclient/internal/state"
	"github.com/spyfall-game/sessionclient/internal/types"
)

var (
	ErrNoCredentials = errors.New("no credential available")
	ErrNoRoom        = errors.New("room id required")
	ErrNotConnected  = errors.New("not connected")
	ErrSessionClosed = errors.New("session closed")
)

const defaultReconnectDelay = 3 * time.Second
const writeTimeout = 3 * time.Second

// Status of the connection state machine.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusConnecting       Status = "connecting"
	StatusOpen             Status = "open"
	StatusClosedUnexpected Status = "closed-unexpected"
	StatusClosed           Status = "closed"
)

// Credentials identify the local player against the authority.
type Credentials struct {
	UserID uint
	Token  string
}

// Config for one room session.
type Config struct {
	ServerURL      string
	RoomID         string
	Credentials    Credentials
	ReconnectDelay time.Duration // 0 means the default 3s
	Dialer         Dialer        // nil means the websocket transport
	Logger         *zap.SugaredLogger
}

// Update is one conflated view of the session pushed to the consumer:
// the latest room projection, the local role secret, the connection
// status and the most recent error condition. Only the newest update
// matters; a slow consumer sees the latest state, not a backlog.
type Update struct {
	Room     *types.RoomState
	Secret   *types.RoleSecret
	Status   Status
	Notice   string
	VoteCast bool
}

// Session owns one connection to the authority and the room projection
// it feeds. All mutation happens on the session loop; the exported
// methods converse with it through the inbox.
type Session struct {
	cfg    Config
	log    *zap.SugaredLogger
	store  *state.Store
	inbox  chan message
	update chan Update
	closed chan struct{}

	// loop-owned
	status Status
	notice string
	conn   Conn
	gen    int // connection generation; stale reader/timer events are dropped
	timer  *time.Timer
}

// Loop messages.
type message interface{ isSessionMsg() }

type dialDone struct {
	gen  int
	conn Conn
	err  error
}

type frameReceived struct {
	gen  int
	data []byte
}

type connLost struct {
	gen int
	err error
}

type reconnectFire struct {
	gen int
}

type sendCommand struct {
	cmdType string
	payload any
	reply   chan error
}

type getUpdate struct {
	reply chan Update
}

type closeSession struct {
	reply chan struct{}
}

func (dialDone) isSessionMsg()      {}
func (frameReceived) isSessionMsg() {}
func (connLost) isSessionMsg()      {}
func (reconnectFire) isSessionMsg() {}
func (sendCommand) isSessionMsg()   {}
func (getUpdate) isSessionMsg()     {}
func (closeSession) isSessionMsg()  {}

// Open starts a session for one room. It fails synchronously when no
// credential is available; transport failures after this point are
// handled by the reconnect policy instead.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Credentials.Token == "" {
		return nil, ErrNoCredentials
	}
	if cfg.RoomID == "" {
		return nil, ErrNoRoom
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromContext(ctx)
	}

	s := &Session{
		cfg:    cfg,
		log:    cfg.Logger.With("room_id", cfg.RoomID),
		store:  state.New(cfg.Credentials.UserID),
		inbox:  make(chan message, 64),
		update: make(chan Update, 1),
		closed: make(chan struct{}),
		status: StatusIdle,
	}
	go s.loop(ctx)
	return s, nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.closed)

	s.dial(ctx)
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return

		case m := <-s.inbox:
			switch m := m.(type) {
			case dialDone:
				if m.gen != s.gen {
					if m.conn != nil {
						_ = m.conn.Close()
					}
					break
				}
				if m.err != nil {
					s.log.Warnw("connect failed", "error", m.err)
					s.dropConnection()
					break
				}
				s.conn = m.conn
				s.status = StatusOpen
				s.notice = ""
				// handshake: ask the authority to start streaming state
				if err := s.write(ctx, types.CmdJoinRoom, types.JoinRoomPayload{RoomID: s.cfg.RoomID}); err != nil {
					s.log.Warnw("join handshake failed", "error", err)
					_ = m.conn.Close()
					s.conn = nil
					s.dropConnection()
					break
				}
				go s.readLoop(ctx, m.conn, s.gen)
				s.publish()

			case frameReceived:
				if m.gen != s.gen {
					break
				}
				ev, err := codec.Decode(m.data)
				if err != nil {
					// logged and dropped, never fatal to the session
					s.log.Warnw("dropping frame", "error", err)
					break
				}
				s.handleEvent(ev)

			case connLost:
				if m.gen != s.gen {
					break
				}
				s.log.Warnw("connection lost", "error", m.err)
				if s.conn != nil {
					_ = s.conn.Close()
					s.conn = nil
				}
				s.dropConnection()

			case reconnectFire:
				if m.gen != s.gen {
					break
				}
				s.dial(ctx)

			case sendCommand:
				if s.status != StatusOpen {
					m.reply <- ErrNotConnected
					break
				}
				err := s.write(ctx, m.cmdType, m.payload)
				if err == nil && m.cmdType == types.CmdVoteAnswer {
					s.store.MarkVoteCast()
					s.publish()
				}
				m.reply <- err

			case getUpdate:
				m.reply <- s.currentUpdate()

			case closeSession:
				s.teardown()
				m.reply <- struct{}{}
				return
			}
		}
	}
}

// dial starts one connection attempt under a fresh generation.
func (s *Session) dial(ctx context.Context) {
	s.gen++
	gen := s.gen
	s.status = StatusConnecting
	attempt := uuid.NewString()
	s.log.Infow("connecting", "attempt_id", attempt)

	go func() {
		conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.ServerURL, s.cfg.RoomID, s.cfg.Credentials.Token)
		select {
		case s.inbox <- dialDone{gen: gen, conn: conn, err: err}:
		case <-s.closed:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
	s.publish()
}

// dropConnection moves to closed-unexpected and schedules exactly one
// reconnect attempt. Repeats indefinitely until Close.
func (s *Session) dropConnection() {
	s.status = StatusClosedUnexpected
	s.notice = "connection error"
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		select {
		case s.inbox <- reconnectFire{gen: gen}:
		case <-s.closed:
		}
	})
	s.publish()
}

func (s *Session) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			select {
			case s.inbox <- connLost{gen: gen, err: err}:
			case <-s.closed:
			}
			return
		}
		select {
		case s.inbox <- frameReceived{gen: gen, data: data}:
		case <-s.closed:
			return
		}
	}
}

func (s *Session) handleEvent(ev codec.Event) {
	switch ev := ev.(type) {
	case codec.ServerError:
		s.notice = ev.Message
		s.publish()

	case codec.Unhandled:
		s.log.Debugw("ignoring frame", "type", ev.Type)

	default:
		if err := s.store.Apply(ev); err != nil {
			s.log.Warnw("applied snapshot with warning", "warning", err)
		}
		s.publish()
	}
}

func (s *Session) write(ctx context.Context, cmdType string, payload any) error {
	data, err := codec.EncodeCommand(cmdType, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, data)
}

// teardown is the single exit path: the reconnect timer is always
// cancelled before the transport is released, so no stale fire can
// reopen a room the user already left.
func (s *Session) teardown() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++ // invalidate any in-flight reader or dial result
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.status = StatusClosed
	s.store.Reset()
	s.publish()
	s.log.Infow("session closed")
}

func (s *Session) currentUpdate() Update {
	return Update{
		Room:     s.store.Room(),
		Secret:   s.store.Secret(),
		Status:   s.status,
		Notice:   s.notice,
		VoteCast: s.store.VoteCast(),
	}
}

// publish replaces whatever update the consumer has not read yet.
func (s *Session) publish() {
	u := s.currentUpdate()
	for {
		select {
		case s.update <- u:
			return
		default:
			select {
			case <-s.update:
			default:
			}
		}
	}
}

// Updates delivers conflated session state; the channel always holds
// at most the newest update.
func (s *Session) Updates() <-chan Update { return s.update }

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.closed }

// State asks the loop for the current view.
func (s *Session) State() Update {
	reply := make(chan Update, 1)
	select {
	case s.inbox <- getUpdate{reply: reply}:
		select {
		case u := <-reply:
			return u
		case <-s.closed:
		}
	case <-s.closed:
	}
	return Update{Status: StatusClosed}
}

// Send fires one command at the authority. At-most-once: if the
// connection is not open the command is dropped and the caller told.
func (s *Session) Send(cmdType string, payload any) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- sendCommand{cmdType: cmdType, payload: payload, reply: reply}:
		select {
		case err := <-reply:
			return err
		case <-s.closed:
			return ErrSessionClosed
		}
	case <-s.closed:
		return ErrSessionClosed
	}
}

func (s *Session) SetReady(ready bool) error {
	return s.Send(types.CmdSetReady, types.SetReadyPayload{Ready: ready})
}

func (s *Session) StartVote(targetUserID uint) error {
	return s.Send(types.CmdVoteStart, types.VoteStartPayload{TargetUserID: targetUserID})
}

func (s *Session) AnswerVote(vote bool) error {
	return s.Send(types.CmdVoteAnswer, types.VoteAnswerPayload{Vote: vote})
}

func (s *Session) SpyGuess(location string) error {
	return s.Send(types.CmdSpyGuess, types.SpyGuessPayload{Location: location})
}

func (s *Session) KickPlayer(targetUserID uint) error {
	return s.Send(types.CmdKickPlayer, types.KickPlayerPayload{TargetUserID: targetUserID})
}

// Close tears the session down. Idempotent; always cancels a pending
// reconnect.
func (s *Session) Close() error {
	reply := make(chan struct{}, 1)
	select {
	case s.inbox <- closeSession{reply: reply}:
		select {
		case <-reply:
		case <-s.closed:
		}
	case <-s.closed:
	}
	return nil
}
