package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCirclesOverlap(t *testing.T) {
	a := Circle{X: 0, Y: 0, Radius: 10}

	assert.True(t, CirclesOverlap(a, Circle{X: 15, Y: 0, Radius: 10}))
	assert.False(t, CirclesOverlap(a, Circle{X: 20, Y: 0, Radius: 10}), "touching is not overlapping")
	assert.False(t, CirclesOverlap(a, Circle{X: 30, Y: 30, Radius: 10}))
}

func TestCircleHitsRect(t *testing.T) {
	rect := Rect{X: 100, Y: 100, W: 50, H: 20}

	assert.True(t, CircleHitsRect(Circle{X: 125, Y: 110, Radius: 1}, rect), "inside")
	assert.True(t, CircleHitsRect(Circle{X: 95, Y: 110, Radius: 6}, rect), "left edge")
	assert.False(t, CircleHitsRect(Circle{X: 90, Y: 90, Radius: 10}, rect), "corner gap")
	assert.True(t, CircleHitsAny(Circle{X: 1720, Y: 940, Radius: ShipRadius}, Obstacles()))
}

func TestWrapAngle(t *testing.T) {
	cases := map[float64]float64{
		0:              0,
		math.Pi:        math.Pi,
		-math.Pi:       math.Pi,
		3 * math.Pi:    math.Pi,
		1.5 * math.Pi:  -0.5 * math.Pi,
		-1.5 * math.Pi: 0.5 * math.Pi,
		4*math.Pi + 1:  1,
	}
	for in, want := range cases {
		assert.InDelta(t, want, WrapAngle(in), 1e-9, "WrapAngle(%v)", in)
	}
}

func TestAngleDeltaTakesShortestPath(t *testing.T) {
	// From just below +π to just above -π is a small positive turn.
	d := AngleDelta(math.Pi-0.1, -math.Pi+0.1)
	assert.InDelta(t, 0.2, d, 1e-9)

	d = AngleDelta(0.1, -0.1)
	assert.InDelta(t, -0.2, d, 1e-9)
}

func TestLerpAndClamp(t *testing.T) {
	assert.Equal(t, 5.0, Lerp(0, 10, 0.5))
	assert.Equal(t, 10.0, Lerp(10, 10, 0.3))
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 5.0, Distance(0, 0, 3, 4))
}

func TestBodyBouncesOffEdges(t *testing.T) {
	b := Body{Circle: Circle{X: 30, Y: 500, Radius: ShipRadius}, VX: -12}

	bounced := b.Step(1.0 / 60)

	assert.True(t, bounced)
	assert.Equal(t, ShipRadius, b.X)
	assert.Greater(t, b.VX, 0.0)
	assert.LessOrEqual(t, b.VX, 12*BounceDamping)
}

func TestCapSpeed(t *testing.T) {
	b := Body{VX: 30, VY: 40}
	b.CapSpeed()
	assert.InDelta(t, MaxSpeed, math.Hypot(b.VX, b.VY), 1e-9)
	assert.InDelta(t, 4.0/3.0, b.VY/b.VX, 1e-9, "direction is kept")
}

func TestProjectileAdvance(t *testing.T) {
	p := Projectile{X: 100, Y: 100, VX: 10, Life: 0.05}

	assert.True(t, p.Advance(1.0/60))
	assert.InDelta(t, 110, p.X, 1e-9)
	assert.False(t, p.Advance(0.1), "expired")

	p = Projectile{X: MapWidth - 1, Y: 100, VX: 10, Life: 5}
	assert.False(t, p.Advance(1.0/60), "left the map")
}

func TestSpawnWraps(t *testing.T) {
	x0, y0 := Spawn(0)
	x6, y6 := Spawn(len(SpawnPoints))
	assert.Equal(t, x0, x6)
	assert.Equal(t, y0, y6)
}
