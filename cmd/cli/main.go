// Interactive terminal client for the Mars board-game server. Drives the
// same connection manager the graphical client uses, which makes it the
// quickest way to poke at a running server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tmars/client/internal/api"
	"tmars/client/internal/events"
	"tmars/client/internal/logger"
	"tmars/client/internal/netcfg"
	"tmars/client/internal/realtime"
	"tmars/client/internal/session"
)

const cliVersion = "1.0.0"

func main() {
	apiBase := flag.String("api", netcfg.APIBase, "REST base URL")
	wsURL := flag.String("ws", netcfg.ServerURL, "WebSocket URL")
	flag.Parse()

	log := logger.New()
	store := session.NewStore()
	rest := api.NewClient(*apiBase)

	var token string
	if rest.TokenValid() {
		token = rest.LoadToken()
	}
	mgr := realtime.NewManager(realtime.Options{
		URL:    *wsURL,
		Token:  token,
		Store:  store,
		Logger: log,
	})
	defer mgr.Close()

	mgr.On(events.KindGameUpdated, events.ListenerFunc(func(e events.Event) {
		u := e.(events.GameUpdated)
		fmt.Printf("\r<< %s\n> ", digest(u.Game))
	}))
	mgr.On(events.KindPlayerDisconnected, events.ListenerFunc(func(e events.Event) {
		p := e.(events.PlayerDisconnected)
		fmt.Printf("\r<< %s left\n> ", p.PlayerName)
	}))
	mgr.On(events.KindConnectionDown, events.ListenerFunc(func(events.Event) {
		fmt.Print("\r<< connection lost, reconnecting...\n> ")
	}))
	mgr.On(events.KindConnectionUp, events.ListenerFunc(func(e events.Event) {
		if e.(events.ConnectionUp).Attempt > 1 {
			fmt.Print("\r<< connection restored\n> ")
		}
	}))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("\nshutting down")
		_ = mgr.Close()
		os.Exit(0)
	}()

	fmt.Printf("Mars CLI v%s — type 'help' for commands\n", cliVersion)
	if sess := store.Load(); sess != nil {
		fmt.Printf("saved session found: game %s as %s ('resume' to rejoin)\n", sess.GameID, sess.PlayerName)
	}

	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !run(line, mgr, rest, store) {
			return
		}
		fmt.Print("> ")
	}
}

// run executes one command line; false means quit.
func run(line string, mgr *realtime.Manager, rest *api.Client, store *session.Store) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Println(`commands:
  register <user> <pass>     create an account
  login <user> <pass>        authenticate and store the token
  create [maxPlayers]        create a game
  games                      list open games
  join <gameId> <name>       join a game as a new player
  reconnect <gameId> <name>  reconnect to a game by name
  resume                     rejoin using the saved session
  act <json>                 send a raw action request
  status                     connection and session state
  leave                      forget the saved session
  quit`)

	case "register":
		if len(args) != 2 {
			fmt.Println("usage: register <user> <pass>")
			break
		}
		if err := rest.Register(ctx, args[0], args[1]); err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("registered")

	case "login":
		if len(args) != 2 {
			fmt.Println("usage: login <user> <pass>")
			break
		}
		if _, err := rest.Login(ctx, args[0], args[1]); err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("logged in")

	case "create":
		req := api.CreateGameRequest{}
		if len(args) == 1 {
			_, _ = fmt.Sscanf(args[0], "%d", &req.MaxPlayers)
		}
		created, err := rest.CreateGame(ctx, req)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("created game", created.ID)

	case "games":
		games, err := rest.ListGames(ctx)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		if len(games) == 0 {
			fmt.Println("no games")
		}
		for _, g := range games {
			fmt.Printf("  %s  %s  %d/%d\n", g.ID, g.Status, g.Players, g.MaxPlayers)
		}

	case "join":
		if len(args) != 2 {
			fmt.Println("usage: join <gameId> <name>")
			break
		}
		res, err := mgr.PlayerConnect(ctx, args[1], args[0], "")
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Printf("joined %s as %s (%s)\n", args[0], res.PlayerName, res.PlayerID)

	case "reconnect":
		if len(args) != 2 {
			fmt.Println("usage: reconnect <gameId> <name>")
			break
		}
		res, err := mgr.PlayerReconnect(ctx, args[1], args[0])
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Printf("reconnected as %s (%s)\n", res.PlayerName, res.PlayerID)

	case "resume":
		res, err := mgr.ResumeSession(ctx, rest)
		switch {
		case errors.Is(err, realtime.ErrNoSession):
			fmt.Println("no saved session")
		case errors.Is(err, realtime.ErrGameGone):
			fmt.Println("saved game no longer exists, session cleared")
		case err != nil:
			fmt.Println("error:", err)
		default:
			fmt.Printf("resumed as %s (%s)\n", res.PlayerName, res.PlayerID)
		}

	case "act":
		if len(args) == 0 {
			fmt.Println("usage: act <json>")
			break
		}
		sess := store.Load()
		if sess == nil {
			fmt.Println("join a game first")
			break
		}
		raw := strings.Join(args, " ")
		if !json.Valid([]byte(raw)) {
			fmt.Println("not valid JSON")
			break
		}
		if err := mgr.SendAction(ctx, sess.GameID, json.RawMessage(raw)); err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("sent")

	case "status":
		fmt.Println("connection:", mgr.State())
		if id := mgr.CurrentPlayerID(); id != "" {
			fmt.Println("player id: ", id)
		}
		if sess := store.Load(); sess != nil {
			fmt.Printf("session:    game %s as %s (saved %s)\n",
				sess.GameID, sess.PlayerName, sess.SavedAt.Format(time.RFC3339))
		} else {
			fmt.Println("session:    none")
		}

	case "leave":
		store.Clear()
		fmt.Println("session cleared")

	case "quit", "exit":
		return false

	default:
		fmt.Println("unknown command, try 'help'")
	}
	return true
}

// digest renders an opaque snapshot as one line, peeking only at fields
// every snapshot carries.
func digest(snap json.RawMessage) string {
	var peek struct {
		ID           string `json:"id"`
		Generation   int    `json:"generation"`
		CurrentPhase string `json:"currentPhase"`
	}
	if err := json.Unmarshal(snap, &peek); err != nil || peek.ID == "" {
		return fmt.Sprintf("game update (%d bytes)", len(snap))
	}
	out := "game " + peek.ID
	if peek.Generation > 0 {
		out += fmt.Sprintf(", gen %d", peek.Generation)
	}
	if peek.CurrentPhase != "" {
		out += ", phase " + peek.CurrentPhase
	}
	return out
}
