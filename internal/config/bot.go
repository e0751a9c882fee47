package config

import "github.com/caarlos0/env/v11"

type BotConfig struct {
	GameCode   string `env:"GAME_CODE,required,notEmpty"`
	PlayerName string `env:"PLAYER_NAME" envDefault:"bot"`
	Story      string `env:"BOT_STORY" envDefault:"Once, I convinced everyone that I wrote all my own stories."`
	VoteReplay bool   `env:"BOT_VOTE_REPLAY" envDefault:"false"`
}

func LoadBot() (BotConfig, error) {
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
