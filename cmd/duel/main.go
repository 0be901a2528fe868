// cmd/duel/main.go
//
// duel is a headless client for manual testing and bots. It connects through the
// relay (default) or directly to a peer, exchanges deck leaders and then reads
// commands from stdin:
//
//	state | end | flip <uid> | move <uid> <x> <y> | sync | ping | quit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/jason-s-yu/dotr/internal/client"
	"github.com/jason-s-yu/dotr/internal/game"
	"github.com/jason-s-yu/dotr/internal/models"
	"github.com/jason-s-yu/dotr/internal/peer"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// duelist is what the command loop needs from either transport.
type duelist interface {
	Mirror() *client.Mirror
	IsHost() bool
	Perform(act game.Action) error
	SendState() error
	Ping() error
	RegisterLeader(leader models.Card) error
	OnOpponentDeckLeader(fn client.LeaderHandler)
	OnAction(fn func(game.Action))
	OnError(fn func(string))
	Close() error
}

type relayDuelist struct {
	*client.Client
	ctx context.Context
}

func (r relayDuelist) Perform(act game.Action) error { return r.Client.Perform(r.ctx, act) }
func (r relayDuelist) SendState() error              { return r.Client.SendState(r.ctx) }
func (r relayDuelist) Close() error                  { return r.Client.Disconnect() }
func (r relayDuelist) RegisterLeader(l models.Card) error {
	return r.Client.RegisterDeckLeader(r.ctx, l)
}
func (r relayDuelist) Ping() error { return r.Client.Ping(r.ctx) }

type peerDuelist struct {
	*peer.Peer
}

func (p peerDuelist) RegisterLeader(l models.Card) error { return p.Peer.SendDeckLeader(l) }

func main() {
	var (
		mode      = flag.String("mode", "relay", "transport: relay or peer")
		url       = flag.String("url", "ws://localhost:8080/ws", "relay websocket URL")
		signalURL = flag.String("signal", "ws://localhost:8081/ws", "signaling websocket URL (peer mode)")
		roomID    = flag.String("room", "", "signaling room to create or join (peer mode)")
		host      = flag.Bool("host", false, "create the signaling room and send the offer (peer mode)")
		name      = flag.String("name", "", "player name")
		session   = flag.String("session", defaultSessionPath(), "file holding the last relay seat")
		leader    = flag.String("leader", "Dark Magician", "deck leader card name")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var d duelist
	switch *mode {
	case "relay":
		c, err := client.ConnectStored(ctx, client.Options{URL: *url, PlayerName: *name, Logger: logger}, client.NewSessionStore(*session))
		if err != nil {
			logger.Fatalf("connect: %v", err)
		}
		logger.Infof("seated in room %s as %s (host=%v)", c.RoomID(), c.PlayerID(), c.IsHost())
		d = relayDuelist{Client: c, ctx: ctx}
	case "peer":
		if *roomID == "" {
			logger.Fatal("-room is required in peer mode")
		}
		p, err := peer.Connect(ctx, peer.Options{
			SignalingURL: *signalURL,
			RoomID:       *roomID,
			Host:         *host,
			PlayerName:   *name,
			Logger:       logger,
		})
		if err != nil {
			logger.Fatalf("connect: %v", err)
		}
		logger.Infof("peer connection open in room %s (host=%v)", *roomID, *host)
		d = peerDuelist{Peer: p}
	default:
		logger.Fatalf("unknown mode %q", *mode)
	}
	defer d.Close()

	d.OnError(func(msg string) { logger.Errorf("error: %s", msg) })
	d.OnAction(func(a game.Action) { logger.Infof("opponent: %s", a.ActionType()) })
	card := leaderCard(*leader)
	// The leader is placed once the opponent's arrives, so both sides are seated
	// and the summon reaches them.
	var placed sync.Once
	d.OnOpponentDeckLeader(func(l models.Card, opponent string) {
		logger.Infof("opponent %s leads with %s", opponent, l.Name)
		placed.Do(func() {
			if err := placeLeader(d, card); err != nil {
				logger.Errorf("failed to place deck leader: %v", err)
			}
		})
	})
	if err := d.RegisterLeader(card); err != nil {
		logger.Fatalf("deck leader: %v", err)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := runCommand(d, strings.Fields(line))
			if err != nil {
				logger.Warn(err)
			}
			if quit {
				return
			}
		}
	}
}

func leaderCard(name string) models.Card {
	return models.Card{
		Name:      name,
		Atk:       2500,
		Def:       2100,
		Level:     7,
		Attribute: models.DefaultAttribute,
		Race:      "Spellcaster",
		Type:      models.DefaultType,
	}
}

func placeLeader(d duelist, card models.Card) error {
	side := d.Mirror().Local()
	start := game.PlayerLeaderStart
	if side == models.SideEnemy {
		start = game.EnemyLeaderStart
	}
	return d.Perform(game.Summon{
		Card:         card,
		Owner:        side,
		X:            start.X,
		Y:            start.Y,
		Position:     models.PositionAttack,
		FaceUp:       true,
		IsDeckLeader: true,
	})
}

func runCommand(d duelist, args []string) (quit bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "state":
		out, err := json.MarshalIndent(d.Mirror().Snapshot(), "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Println(string(out))
	case "end":
		return false, d.Perform(game.EndTurn{})
	case "flip":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: flip <uid>")
		}
		return false, d.Perform(game.Flip{UnitID: args[1]})
	case "move":
		if len(args) != 4 {
			return false, fmt.Errorf("usage: move <uid> <x> <y>")
		}
		x, err := strconv.Atoi(args[2])
		if err != nil {
			return false, err
		}
		y, err := strconv.Atoi(args[3])
		if err != nil {
			return false, err
		}
		return false, d.Perform(game.Move{UnitID: args[1], X: x, Y: y})
	case "sync":
		return false, d.SendState()
	case "ping":
		return false, d.Ping()
	default:
		return false, fmt.Errorf("unknown command %q", args[0])
	}
	return false, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".dotr-session.json"
	}
	return filepath.Join(dir, "dotr", "session.json")
}
