package main

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"spacedrift/internal/client"
	"spacedrift/internal/config"
	"spacedrift/internal/game"
	"spacedrift/internal/logging"
	"spacedrift/internal/net"
)

const (
	matchLength = 180.0
	turnSpeed   = 0.07
	thrust      = 0.35
)

type Game struct {
	logger     *zap.Logger
	conn       *client.Connector
	session    *client.Session
	reconciler *client.Reconciler
	renderer   *client.Renderer

	mu       sync.Mutex
	status   string
	lastTick time.Time
}

func NewGame(cfg config.ClientConfig, logger *zap.Logger) *Game {
	id := uuid.NewString()
	conn := client.NewConnector(cfg.ServerURL, logger)
	g := &Game{
		logger:     logger,
		conn:       conn,
		session:    client.NewSession(conn, id, cfg.Name, logger),
		reconciler: client.NewReconciler(id, cfg.Name, conn.Send, logger),
		renderer:   client.NewRenderer(),
		status:     "connecting",
	}

	conn.OnMessage(g.reconciler.Apply)
	conn.OnStateChange(func(s client.State) { g.setStatus(s.String()) })
	g.session.OnRoom(g.enter)
	return g
}

func (g *Game) setStatus(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = s
}

func (g *Game) statusLine() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *Game) enter(roomID string, host bool) {
	g.reconciler.Enter(roomID, host, len(g.session.Players())-1)
	g.reconciler.Apply(&net.PlayerList{Players: g.session.Players()})
	if host {
		g.reconciler.StartTimer(matchLength)
		if err := g.session.StartGame(nil); err != nil {
			g.logger.Warn("start game", zap.Error(err))
		}
	}
	g.setStatus("room " + roomID)
}

func (g *Game) start(ctx context.Context, cfg config.ClientConfig) {
	var err error
	switch cfg.Mode {
	case config.ModeHost:
		if err = g.session.HostRoom(ctx, cfg.Room); err == nil {
			g.enter(cfg.Room, true)
		}
	case config.ModeJoin:
		if err = g.session.JoinRoom(ctx, cfg.Room); err == nil {
			g.enter(cfg.Room, false)
		}
	default:
		err = g.session.FindMatch()
		g.setStatus("searching")
	}
	if err != nil {
		g.logger.Error("enter room", zap.String("mode", cfg.Mode), zap.Error(err))
		g.setStatus(err.Error())
	}
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if g.session.Queued() {
			_ = g.session.CancelMatch()
		}
		if roomID, _ := g.session.Room(); roomID != "" {
			_ = g.session.LeaveRoom()
		}
		return ebiten.Termination
	}

	var turn, accel float64
	if ebiten.IsKeyPressed(ebiten.KeyA) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		turn -= turnSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		turn += turnSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyW) || ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		accel = thrust
	}
	g.reconciler.Thrust(turn, accel)

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.reconciler.Fire()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) && !g.reconciler.Local().Alive {
		g.reconciler.Respawn(rand.Intn(len(game.SpawnPoints)))
	}

	g.reconciler.Tick(1.0 / 60)
	g.reconciler.ReportState()

	if g.session.IsHost() && time.Since(g.lastTick) >= time.Second {
		g.lastTick = time.Now()
		g.reconciler.SetHost(true)
		g.reconciler.ReportTimer()
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.Draw(screen, g.reconciler.Snapshot(), g.statusLine())
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return client.ScreenWidth, client.ScreenHeight
}

func main() {
	cfg := config.LoadClient()
	logger, err := logging.New(logging.FromEnv("spacedrift-client"))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGame(cfg, logger)
	go g.conn.Run(ctx)
	defer g.conn.Close()
	go g.start(ctx, cfg)

	ebiten.SetWindowSize(client.ScreenWidth, client.ScreenHeight)
	ebiten.SetWindowTitle("Space Drift")
	if err := ebiten.RunGame(g); err != nil {
		logger.Fatal("run game", zap.Error(err))
	}
}
