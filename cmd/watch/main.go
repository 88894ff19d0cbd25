// Read-only spectator: attaches to a game and prints every state update
// as a one-line digest. Handy for tailing a match from a second terminal
// and for watching reconnect behavior during server restarts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tmars/client/internal/api"
	"tmars/client/internal/events"
	"tmars/client/internal/logger"
	"tmars/client/internal/netcfg"
	"tmars/client/internal/realtime"
	"tmars/client/internal/session"
)

func main() {
	gameID := flag.String("game", "", "game id to watch (required)")
	name := flag.String("name", "observer", "player name to watch as")
	apiBase := flag.String("api", netcfg.APIBase, "REST base URL")
	wsURL := flag.String("ws", netcfg.ServerURL, "WebSocket URL")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address (e.g. :9180)")
	flag.Parse()

	log := logger.New()
	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "usage: watch -game <gameId> [-name <player>]")
		os.Exit(2)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("metrics listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics listener failed", "err", err)
			}
		}()
	}

	rest := api.NewClient(*apiBase)
	if _, err := rest.GetGame(context.Background(), *gameID, ""); err != nil {
		log.Error("game lookup failed", "game", *gameID, "err", err)
		os.Exit(1)
	}

	mgr := realtime.NewManager(realtime.Options{
		URL:    *wsURL,
		Store:  session.NewStore(),
		Logger: log,
	})
	defer mgr.Close()

	updates := make(chan events.GameUpdated, 16)
	mgr.On(events.KindGameUpdated, events.ListenerFunc(func(e events.Event) {
		updates <- e.(events.GameUpdated)
	}))
	mgr.On(events.KindConnectionDown, events.ListenerFunc(func(events.Event) {
		log.Warn("connection lost, reconnecting")
	}))

	res, err := mgr.PlayerConnect(context.Background(), *name, *gameID, "")
	if err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	log.Info("watching", "game", *gameID, "as", res.PlayerName, "playerId", res.PlayerID)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	seq := 0
	for {
		select {
		case u := <-updates:
			seq++
			fmt.Printf("[%04d] %s\n", seq, digest(u.Game))
		case <-interrupt:
			fmt.Println("bye")
			return
		}
	}
}

func digest(snap json.RawMessage) string {
	var peek struct {
		Generation   int    `json:"generation"`
		CurrentPhase string `json:"currentPhase"`
	}
	if err := json.Unmarshal(snap, &peek); err != nil {
		return fmt.Sprintf("update (%d bytes)", len(snap))
	}
	return fmt.Sprintf("gen %d, phase %s (%d bytes)", peek.Generation, peek.CurrentPhase, len(snap))
}
