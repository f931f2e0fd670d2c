package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the CLI settings. The auth token comes from the
// authority's login endpoint, out of band.
type Config struct {
	ServerURL      string        `envconfig:"SERVER_URL" default:"ws://localhost:8080/api/game/ws"`
	RoomID         string        `envconfig:"ROOM_ID" required:"true"`
	AuthToken      string        `envconfig:"AUTH_TOKEN" required:"true"`
	UserID         uint          `envconfig:"USER_ID"`
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"3s"`
	Debug          bool          `envconfig:"DEBUG"`
}

func Load() (Config, error) {
	var c Config
	err := envconfig.Process("spyfall", &c)
	return c, err
}
