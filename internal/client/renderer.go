package client

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"spacedrift/internal/game"
)

const (
	ScreenWidth  = 1280
	ScreenHeight = 720
)

var (
	colorSpace      = color.RGBA{8, 10, 24, 255}
	colorBorder     = color.RGBA{60, 70, 110, 255}
	colorObstacle   = color.RGBA{90, 80, 70, 255}
	colorLocal      = color.RGBA{80, 200, 255, 255}
	colorRemote     = color.RGBA{255, 110, 90, 255}
	colorDead       = color.RGBA{90, 90, 90, 255}
	colorProjectile = color.RGBA{255, 240, 120, 255}
	colorPickup     = color.RGBA{120, 255, 140, 255}
)

// Renderer draws a Snapshot top-down with the camera on the local ship.
type Renderer struct {
	camX, camY float64
}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) toScreen(x, y float64) (float32, float32) {
	return float32(x - r.camX + ScreenWidth/2), float32(y - r.camY + ScreenHeight/2)
}

func (r *Renderer) Draw(screen *ebiten.Image, snap Snapshot, status string) {
	screen.Fill(colorSpace)
	r.camX, r.camY = snap.Local.X, snap.Local.Y

	x0, y0 := r.toScreen(0, 0)
	vector.StrokeRect(screen, x0, y0, game.MapWidth, game.MapHeight, 2, colorBorder, false)

	for _, o := range game.Obstacles() {
		x, y := r.toScreen(o.X, o.Y)
		vector.DrawFilledRect(screen, x, y, float32(o.W), float32(o.H), colorObstacle, false)
	}

	for _, p := range snap.Pickups {
		x, y := r.toScreen(p.X, p.Y)
		vector.DrawFilledCircle(screen, x, y, game.PickupRadius, colorPickup, true)
	}

	for _, p := range snap.Projectiles {
		x, y := r.toScreen(p.X, p.Y)
		vector.DrawFilledCircle(screen, x, y, game.ProjectileRadius, colorProjectile, true)
	}

	for _, e := range snap.Remotes {
		c := colorRemote
		if !e.Alive {
			c = colorDead
		}
		r.drawShip(screen, e.X, e.Y, e.Angle, c)
		x, y := r.toScreen(e.X, e.Y)
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s %.0f %s", e.Name, e.Health, e.Weapon), int(x)-20, int(y)+game.ShipRadius+4)
	}

	local := colorLocal
	if !snap.Local.Alive {
		local = colorDead
	}
	r.drawShip(screen, snap.Local.X, snap.Local.Y, snap.Local.Angle, local)

	hud := fmt.Sprintf("%s\nHP %.0f  %s %d  K %d  D %d", status, snap.Local.Health,
		snap.Local.Weapon, snap.Local.Ammo, snap.Local.Kills, snap.Local.Deaths)
	if snap.TimeLeft > 0 {
		hud += fmt.Sprintf("  %d:%02d", int(snap.TimeLeft)/60, int(snap.TimeLeft)%60)
	}
	ebitenutil.DebugPrint(screen, hud)
}

func (r *Renderer) drawShip(screen *ebiten.Image, x, y, angle float64, c color.Color) {
	sx, sy := r.toScreen(x, y)
	vector.StrokeCircle(screen, sx, sy, game.ShipRadius, 2, c, true)

	nx := sx + float32(math.Cos(angle)*game.ShipRadius*1.4)
	ny := sy + float32(math.Sin(angle)*game.ShipRadius*1.4)
	vector.StrokeLine(screen, sx, sy, nx, ny, 2, c, true)
}
