package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/spyfall-game/sessionclient/internal/config"
	"github.com/spyfall-game/sessionclient/internal/logging"
	"github.com/spyfall-game/sessionclient/internal/session"
	"github.com/spyfall-game/sessionclient/internal/shutdown"
	"github.com/spyfall-game/sessionclient/internal/state"
	"github.com/spyfall-game/sessionclient/internal/types"
)

func main() {
	_ = godotenv.Load()

	ctx, done := shutdown.New()
	defer done()

	logger := logging.FromContext(ctx)
	if err := realMain(ctx); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("processing the config: %w", err)
	}

	if cfg.Debug {
		logger = logging.DebugLogger()
		ctx = logging.WithLogger(ctx, logger)
	}

	sess, err := session.Open(ctx, session.Config{
		ServerURL:      cfg.ServerURL,
		RoomID:         cfg.RoomID,
		Credentials:    session.Credentials{UserID: cfg.UserID, Token: cfg.AuthToken},
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sess.Close()
		watch(ctx, sess, cfg.UserID)
		return nil
	})
	return g.Wait()
}

// watch renders every session update until the context ends.
func watch(ctx context.Context, sess *session.Session, userID uint) {
	logger := logging.FromContext(ctx)

	var lastStatus session.Status
	var lastRoomStatus types.GameStatus
	announcedRole := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case u := <-sess.Updates():
			if u.Status != lastStatus {
				lastStatus = u.Status
				logger.Infow("connection", "status", u.Status)
			}
			if u.Notice != "" {
				logger.Warnw("authority", "message", u.Notice)
			}
			if u.Secret != nil && !announcedRole {
				announcedRole = true
				printRole(u.Secret)
			}
			if u.Room != nil && u.Room.Status != lastRoomStatus {
				lastRoomStatus = u.Room.Status
				printRoom(u, userID)
			}
		}
	}
}

func printRole(secret *types.RoleSecret) {
	if secret.Role == types.RoleSpy {
		fmt.Fprintln(os.Stdout, "You are the SPY. Figure out the location before time runs out.")
		return
	}
	fmt.Fprintf(os.Stdout, "Location: %s. You are the %s. Find the spy.\n", secret.Location, secret.LocationRole)
}

func printRoom(u session.Update, userID uint) {
	now := time.Now()
	fmt.Fprintf(os.Stdout, "[%s] room %s (%s left)\n", u.Room.Status, u.Room.RoomID, state.Countdown(u.Room, now))

	for _, p := range state.OrderedPlayers(u.Room) {
		marker := " "
		if p.IsReady {
			marker = "+"
		}
		you := ""
		if p.UserID == userID {
			you = " (you)"
		}
		fmt.Fprintf(os.Stdout, "  [%s] %s%s\n", marker, p.Username, you)
	}

	if target, ok := state.VoteTarget(u.Room); ok {
		fmt.Fprintf(os.Stdout, "  voting on %s\n", target.Username)
	}
	if u.Room.Status == types.StatusFinished && u.Room.Winner != "" {
		fmt.Fprintf(os.Stdout, "  winner: %s\n", u.Room.Winner)
	}
}
