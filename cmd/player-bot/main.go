// player-bot is a scripted participant: it joins a session, submits its
// story, guesses at random, and optionally votes for a replay. Useful for
// filling seats during development and for soaking the sync engine against a
// real server.
package main

import (
	"context"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"wasnt-me/internal/api"
	"wasnt-me/internal/config"
	"wasnt-me/internal/logging"
	"wasnt-me/internal/session"
	"wasnt-me/internal/viewmodel"
)

func main() {
	_ = godotenv.Load()

	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	clientCfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("load client config failed")
	}
	botCfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("load bot config failed")
	}

	identity, err := session.OpenIdentity(clientCfg.IdentityPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open identity store failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	room := session.OpenRoom(botCfg.GameCode, session.RoomOptions{
		Config:   clientCfg,
		Client:   api.NewClient(clientCfg.APIURL),
		Identity: identity,
	})
	defer room.Close()

	if room.PlayerID() != 0 {
		log.Info().Int("player_id", room.PlayerID()).Msg("resuming existing seat")
	} else if _, err := room.Join(ctx, botCfg.PlayerName); err != nil {
		log.Fatal().Err(err).Str("game_code", room.GameCode()).Msg("join failed")
	}

	b := &bot{room: room, cfg: botCfg, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for {
		select {
		case <-ctx.Done():
			if err := room.Leave(context.Background()); err != nil {
				log.Warn().Err(err).Msg("leave failed")
			}
			return
		case ev := <-room.Events():
			if done := b.handle(ctx, ev); done {
				return
			}
		}
	}
}

type bot struct {
	room *session.Room
	cfg  config.BotConfig
	rnd  *rand.Rand

	storySent bool
	voted     bool
}

// handle reacts to whatever the current view asks of this participant. Every
// action is safe to attempt twice: the server rejects duplicates and the bot
// only trusts the next snapshot.
func (b *bot) handle(ctx context.Context, ev session.Event) bool {
	switch ev.Kind {
	case session.EventGone:
		log.Info().Str("game_code", b.room.GameCode()).Msg("session over, exiting")
		return true
	case session.EventError:
		log.Warn().Err(ev.Err).Msg("session error")
		return false
	case session.EventView:
	default:
		return false
	}

	switch v := ev.View.(type) {
	case viewmodel.LobbyView:
		if !b.storySent && !v.You.HasSubmittedStory {
			b.storySent = true
			if err := b.room.SubmitStory(ctx, b.cfg.Story); err != nil {
				log.Warn().Err(err).Msg("submit story failed")
				b.storySent = false
			}
		}
	case viewmodel.GuessingView:
		if len(v.Targets) == 0 {
			return false
		}
		target := v.Targets[b.rnd.Intn(len(v.Targets))]
		log.Info().Str("guess", target.Name).Str("story", v.Story.Content).Msg("guessing")
		if err := b.room.SubmitGuess(ctx, target.ID); err != nil && !api.IsValidation(err) {
			log.Warn().Err(err).Msg("submit guess failed")
		}
	case viewmodel.FinalView:
		if b.cfg.VoteReplay && !b.voted {
			b.voted = true
			if err := b.room.VoteReplay(ctx); err != nil {
				log.Warn().Err(err).Msg("replay vote failed")
			}
		}
	}
	return false
}
