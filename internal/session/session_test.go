package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spyfall-game/sessionclient/internal/types"
)

var errConnDropped = errors.New("connection dropped")

// fakeConn is a scripted connection: the test feeds inbound frames via
// in and observes outbound commands via out. drop simulates the server
// side going away.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errConnDropped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errConnDropped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) drop() { _ = c.Close() }

// fakeDialer hands out pre-provisioned connections; Dial blocks until
// the test supplies the next one, so reconnect attempts are observable
// one by one.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, serverURL, roomID, token string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	select {
	case c := <-d.conns:
		if c == nil {
			return nil, errors.New("connection refused")
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig(d Dialer, delay time.Duration) Config {
	return Config{
		ServerURL:      "ws://authority.test/api/game/ws",
		RoomID:         "ABCD",
		Credentials:    Credentials{UserID: 1, Token: "jwt-token"},
		ReconnectDelay: delay,
		Dialer:         d,
	}
}

func waitFor(t *testing.T, s *Session, what string, cond func(Update) bool) Update {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u := s.State()
		if cond(u) {
			return u
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
	return Update{}
}

func waitDials(t *testing.T, d *fakeDialer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d dial attempts, got %d", want, d.count())
}

func recvCommand(t *testing.T, c *fakeConn, within time.Duration) types.Message {
	t.Helper()
	select {
	case data := <-c.out:
		var m types.Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("outbound frame is not a valid envelope: %v", err)
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound command")
		return types.Message{} // unreachable
	}
}

func TestOpen_MissingCredentialFailsFast(t *testing.T) {
	d := newFakeDialer()
	cfg := testConfig(d, time.Minute)
	cfg.Credentials.Token = ""

	if _, err := Open(context.Background(), cfg); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("want ErrNoCredentials, got %v", err)
	}
	if d.count() != 0 {
		t.Fatalf("open without credentials must not dial, got %d attempts", d.count())
	}
}

func TestSession_JoinHandshakeOnOpen(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	msg := recvCommand(t, conn, time.Second)
	if msg.Type != types.CmdJoinRoom {
		t.Fatalf("first command must be join_room, got %q", msg.Type)
	}
	var p types.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID != "ABCD" {
		t.Fatalf("join_room must carry the room id, got %s (%v)", msg.Payload, err)
	}
}

func TestSession_SnapshotThenGameStarted(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	conn.in <- []byte(`{"type":"room_state","payload":{
		"room_id":"ABCD","status":"waiting",
		"players":{"1":{"user_id":1,"username":"alice","is_ready":false}}}}`)

	u := waitFor(t, s, "waiting snapshot", func(u Update) bool { return u.Room != nil })
	if u.Room.Status != types.StatusWaiting {
		t.Fatalf("want status waiting, got %s", u.Room.Status)
	}
	if len(u.Room.Players) != 1 || u.Room.Players[1].IsReady {
		t.Fatalf("want one not-ready player, got %+v", u.Room.Players)
	}

	conn.in <- []byte(`{"type":"game_started","payload":{
		"room_id":"ABCD","my_role":{"role":"spy"},"timer_end":1700000042,"spy_count":1}}`)

	u = waitFor(t, s, "game start", func(u Update) bool { return u.Secret != nil })
	if u.Room.Status != types.StatusPlaying {
		t.Fatalf("want status playing after game_started, got %s", u.Room.Status)
	}
	if u.Secret.Role != types.RoleSpy || u.Secret.Location != "" {
		t.Fatalf("want a bare spy secret, got %+v", u.Secret)
	}
}

func TestSession_ServerErrorLeavesRoomIntact(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	conn.in <- []byte(`{"type":"room_state","payload":{"room_id":"ABCD","status":"waiting","players":{}}}`)
	waitFor(t, s, "snapshot", func(u Update) bool { return u.Room != nil })

	conn.in <- []byte(`{"type":"error","payload":{"message":"room is full"}}`)

	u := waitFor(t, s, "error notice", func(u Update) bool { return u.Notice == "room is full" })
	if u.Status != StatusOpen {
		t.Fatalf("protocol error must not close the session, status %s", u.Status)
	}
	if u.Room == nil || u.Room.Status != types.StatusWaiting {
		t.Fatalf("protocol error must not alter room state: %+v", u.Room)
	}
}

func TestSession_MalformedAndUnknownFramesSurvived(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	conn.in <- []byte(`this is not json`)
	conn.in <- []byte(`{"type":"server_gossip","payload":{"x":1}}`)
	conn.in <- []byte(`{"type":"room_state","payload":{"room_id":"ABCD","status":"waiting","players":{}}}`)

	u := waitFor(t, s, "snapshot after junk", func(u Update) bool { return u.Room != nil })
	if u.Status != StatusOpen {
		t.Fatalf("junk frames must never fail the session, status %s", u.Status)
	}
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	conn.in <- []byte(`{"type":"room_state","payload":{"room_id":"ABCD","status":"voting","players":{},"voting":{"target_user_id":2,"votes":{}}}}`)
	waitFor(t, s, "snapshot", func(u Update) bool { return u.Room != nil })

	conn.drop()
	waitFor(t, s, "disconnect", func(u Update) bool { return u.Status == StatusClosedUnexpected })

	if err := s.AnswerVote(true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send while disconnected must report ErrNotConnected, got %v", err)
	}

	u := s.State()
	if u.VoteCast {
		t.Fatalf("dropped command must not leave an optimistic flag behind")
	}
	if u.Room == nil || u.Room.Status != types.StatusVoting {
		t.Fatalf("store must be unchanged by a failed send: %+v", u.Room)
	}
}

func TestSession_ReconnectOncePerClosure(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	waitDials(t, d, 1)

	// N consecutive closures schedule exactly N reconnect attempts
	for i := 0; i < 3; i++ {
		next := newFakeConn()
		d.conns <- next
		conn.drop()
		waitDials(t, d, i+2)
		msg := recvCommand(t, next, time.Second)
		if msg.Type != types.CmdJoinRoom {
			t.Fatalf("reconnect %d must re-run the join handshake, got %q", i+1, msg.Type)
		}
		conn = next
	}

	if got := d.count(); got != 4 {
		t.Fatalf("want 1 initial + 3 reconnect dials, got %d", got)
	}
}

func TestSession_ReconnectCountsAndCloseCancels(t *testing.T) {
	d := newFakeDialer()
	c1 := newFakeConn()
	d.conns <- c1

	s, err := Open(context.Background(), testConfig(d, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	waitDials(t, d, 1)
	c1.drop()

	c2 := newFakeConn()
	d.conns <- c2
	waitDials(t, d, 2)
	c2.drop()

	c3 := newFakeConn()
	d.conns <- c3
	waitDials(t, d, 3)

	// drop again, then close during the pending delay: the next
	// attempt must never happen
	c3.drop()
	waitFor(t, s, "disconnect", func(u Update) bool { return u.Status == StatusClosedUnexpected })
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // 5x the reconnect delay
	if got := d.count(); got != 3 {
		t.Fatalf("close must cancel the pending reconnect: want 3 dials, got %d", got)
	}
}

func TestSession_VoteOverlayOnSend(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	conn.in <- []byte(`{"type":"room_state","payload":{"room_id":"ABCD","status":"voting","players":{"1":{"user_id":1}},"voting":{"target_user_id":2,"votes":{}}}}`)
	waitFor(t, s, "voting snapshot", func(u Update) bool { return u.Room != nil })

	if err := s.AnswerVote(true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	// the join_room handshake went out first, then the vote
	_ = recvCommand(t, conn, time.Second)
	msg := recvCommand(t, conn, time.Second)
	if msg.Type != types.CmdVoteAnswer {
		t.Fatalf("want vote_answer on the wire, got %q", msg.Type)
	}

	u := s.State()
	if !u.VoteCast {
		t.Fatalf("optimistic vote flag must be set after a successful send")
	}
}

func TestSession_CloseIsIdempotentAndClearsSecret(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	s, err := Open(context.Background(), testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	conn.in <- []byte(`{"type":"game_started","payload":{"room_id":"ABCD","my_role":{"role":"local","location":"Casino"},"timer_end":10}}`)
	waitFor(t, s, "secret", func(u Update) bool { return u.Secret != nil })

	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session loop did not exit after close")
	}

	u := s.State()
	if u.Secret != nil || u.Room != nil {
		t.Fatalf("role secret must not outlive the session: %+v", u)
	}
	if err := s.Send(types.CmdSetReady, types.SetReadyPayload{Ready: true}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("send after close must report ErrSessionClosed, got %v", err)
	}
}

func TestSession_ParentContextCancelTearsDown(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.conns <- conn

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, testConfig(d, time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	waitDials(t, d, 1)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session loop did not exit on context cancel")
	}
}
