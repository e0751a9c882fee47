// display-client is the shared-screen view of a session: it creates (or
// resumes) a game, shows the join code, and renders every stage as it
// arrives. It never participates; players act from their own devices.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

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
	displayCfg, err := config.LoadDisplay()
	if err != nil {
		log.Fatal().Err(err).Msg("load display config failed")
	}

	identity, err := session.OpenIdentity(clientCfg.IdentityPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open identity store failed")
	}
	client := api.NewClient(clientCfg.APIURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := pickSession(ctx, client, identity, displayCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("no session to display")
	}
	if err := identity.SetLastCode(code); err != nil {
		log.Warn().Err(err).Msg("remember session code failed")
	}

	room := session.OpenRoom(code, session.RoomOptions{
		Config:   clientCfg,
		Client:   client,
		Identity: identity,
		IsOwner:  true,
	})
	defer room.Close()

	fmt.Printf("join code: %s\n\n", room.GameCode())

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-room.Events():
			switch ev.Kind {
			case session.EventView:
				render(ev.View, ev.Remaining)
			case session.EventCountdown:
				fmt.Printf("\r%2ds left ", ev.Remaining)
			case session.EventConnectivity:
				log.Debug().Bool("connected", ev.Connected).Msg("notification channel")
			case session.EventError:
				if !api.IsNotFound(ev.Err) {
					log.Warn().Err(ev.Err).Msg("session error")
				}
			case session.EventGone:
				fmt.Println("\nsession ended")
				return
			}
		}
	}
}

// pickSession resolves which game to show: an explicit code, the last one
// this display showed, or a brand new session.
func pickSession(ctx context.Context, client *api.Client, identity *session.Identity, cfg config.DisplayConfig) (string, error) {
	if cfg.GameCode != "" {
		return api.NormalizeCode(cfg.GameCode), nil
	}
	if cfg.Resume {
		if last := identity.LastCode(); last != "" {
			if _, err := client.GameState(ctx, last); err == nil {
				log.Info().Str("game_code", last).Msg("resuming previous session")
				return last, nil
			}
		}
	}
	return client.CreateGame(ctx)
}

func render(view viewmodel.View, remaining int) {
	fmt.Println()
	switch v := view.(type) {
	case viewmodel.JoinView:
		// The display never joins, so the lobby stays on the join screen.
		if len(v.Players) == 0 {
			fmt.Println("waiting for players...")
			return
		}
		names := make([]string, 0, len(v.Players))
		ready := 0
		for _, p := range v.Players {
			marker := ""
			if p.HasSubmittedStory {
				marker = " [story in]"
				ready++
			}
			names = append(names, p.Name+marker)
		}
		fmt.Printf("lobby: %s\n", strings.Join(names, ", "))
		if len(v.Players) > 1 && ready == len(v.Players) {
			fmt.Println("everyone is ready; the host can start")
		}
	case viewmodel.RoundIntroView:
		fmt.Printf("round %d of %d\n", v.Round, v.TotalRounds)
	case viewmodel.WatchView:
		fmt.Printf("whose story is this?\n\n  %q\n\nguesses in: %d of %d", v.Story.Content, v.GuessCount, v.GuessTotal)
		if remaining >= 0 {
			fmt.Printf("  (%ds)", remaining)
		}
		fmt.Println()
	case viewmodel.ScoreboardView:
		fmt.Printf("that was %s's story\n", v.AuthorName)
		for i, p := range v.Ranked {
			fmt.Printf("  %d. %-20s %d\n", i+1, p.Name, p.Score)
		}
	case viewmodel.FinalView:
		names := make([]string, 0, len(v.Winners))
		for _, p := range v.Winners {
			names = append(names, p.Name)
		}
		fmt.Printf("game over! winner: %s\n", strings.Join(names, " & "))
		if v.ReplayVotes > 0 {
			fmt.Printf("replay votes: %d\n", v.ReplayVotes)
		}
	}
}
