package game

import "math"

const (
	MapWidth  = 3840.0
	MapHeight = 2160.0

	ShipRadius       = 24.0
	ProjectileRadius = 4.0
	PickupRadius     = 16.0

	MaxSpeed      = 12.0
	Friction      = 0.98
	BounceDamping = 0.7
)

// Obstacles are the fixed asteroid blocks of the arena.
func Obstacles() []Rect {
	return []Rect{
		{X: 1700, Y: 950, W: 440, H: 60},
		{X: 900, Y: 500, W: 120, H: 300},
		{X: 2820, Y: 1360, W: 120, H: 300},
		{X: 600, Y: 1600, W: 300, H: 80},
		{X: 2940, Y: 480, W: 300, H: 80},
	}
}

// SpawnPoints are handed out round-robin by join order.
var SpawnPoints = []struct {
	X, Y float64
}{
	{X: 300, Y: 300},
	{X: MapWidth - 300, Y: MapHeight - 300},
	{X: MapWidth - 300, Y: 300},
	{X: 300, Y: MapHeight - 300},
	{X: MapWidth / 2, Y: 200},
	{X: MapWidth / 2, Y: MapHeight - 200},
}

// Spawn returns the spawn point for the i-th player.
func Spawn(i int) (float64, float64) {
	if i < 0 {
		i = -i
	}
	p := SpawnPoints[i%len(SpawnPoints)]
	return p.X, p.Y
}

// Body is a moving circle with velocity in units per 1/60s frame.
type Body struct {
	Circle
	VX, VY float64
}

// CapSpeed scales the velocity down to MaxSpeed.
func (b *Body) CapSpeed() {
	speed := math.Hypot(b.VX, b.VY)
	if speed > MaxSpeed {
		scale := MaxSpeed / speed
		b.VX *= scale
		b.VY *= scale
	}
}

// Step advances the body by dt seconds and bounces it off the map edges.
// It reports whether it bounced.
func (b *Body) Step(dt float64) bool {
	frames := dt * 60
	b.X += b.VX * frames
	b.Y += b.VY * frames
	b.VX *= math.Pow(Friction, frames)
	b.VY *= math.Pow(Friction, frames)
	return b.bounce()
}

func (b *Body) bounce() bool {
	bounced := false
	if b.X-b.Radius < 0 {
		b.X = b.Radius
		b.VX = math.Abs(b.VX) * BounceDamping
		bounced = true
	}
	if b.X+b.Radius > MapWidth {
		b.X = MapWidth - b.Radius
		b.VX = -math.Abs(b.VX) * BounceDamping
		bounced = true
	}
	if b.Y-b.Radius < 0 {
		b.Y = b.Radius
		b.VY = math.Abs(b.VY) * BounceDamping
		bounced = true
	}
	if b.Y+b.Radius > MapHeight {
		b.Y = MapHeight - b.Radius
		b.VY = -math.Abs(b.VY) * BounceDamping
		bounced = true
	}
	return bounced
}

// Projectile is a shot owned by the player that fired it. Only the owner's
// client may turn a hit into damage.
type Projectile struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Weapon  string  `json:"weaponId,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	Angle   float64 `json:"angle"`
	Damage  float64 `json:"damage"`
	Life    float64 `json:"life"`
}

// Advance moves p by dt seconds and reports whether it is still in flight.
func (p *Projectile) Advance(dt float64) bool {
	p.X += p.VX * dt * 60
	p.Y += p.VY * dt * 60
	p.Life -= dt
	return p.Life > 0 && !OutOfBounds(p.X, p.Y)
}

func (p *Projectile) Circle() Circle {
	return Circle{X: p.X, Y: p.Y, Radius: ProjectileRadius}
}

// OutOfBounds reports whether a point is off the map.
func OutOfBounds(x, y float64) bool {
	return x < 0 || y < 0 || x > MapWidth || y > MapHeight
}
