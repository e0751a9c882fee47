package config

import "github.com/caarlos0/env/v11"

// DisplayConfig configures the unattended display client. The display is not
// a participant; it creates the session, shows the join code, and renders
// whatever the snapshot says.
type DisplayConfig struct {
	GameCode string `env:"GAME_CODE"` // empty: create a new session or resume the last one
	Resume   bool   `env:"DISPLAY_RESUME" envDefault:"true"`
}

func LoadDisplay() (DisplayConfig, error) {
	var cfg DisplayConfig
	err := env.Parse(&cfg)
	return cfg, err
}
