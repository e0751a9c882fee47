package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig holds everything a mounted session view needs: where the
// authoritative server lives, how often to fall back to polling, and the
// stage-duration table used when a snapshot carries no deadline.
type ClientConfig struct {
	APIURL string `env:"API_URL" envDefault:"http://localhost:5000"`
	WSURL  string `env:"WS_URL" envDefault:"ws://localhost:5000/ws"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"500ms"`
	GracePeriod  time.Duration `env:"GONE_GRACE_PERIOD" envDefault:"2s"`

	// Fallback stage durations, matching the server's scheduler defaults.
	RoundIntroSec int `env:"ROUND_INTRO_DURATION_SEC" envDefault:"5"`
	GuessingSec   int `env:"GUESS_DURATION_SEC" envDefault:"20"`
	ScoreboardSec int `env:"SCOREBOARD_DURATION_SEC" envDefault:"6"`

	// Path of the JSON file that remembers player identities per game code.
	// Empty means a per-user default under the OS config dir.
	IdentityPath string `env:"IDENTITY_PATH"`
}

func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	err := env.Parse(&cfg)
	return cfg, err
}
