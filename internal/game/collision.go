package game

import "math"

// Circle is anything round on the map: ships, projectiles, pickups.
type Circle struct {
	X, Y   float64
	Radius float64
}

// Rect is an axis-aligned obstacle.
type Rect struct {
	X, Y, W, H float64
}

// CirclesOverlap reports whether a and b intersect. Touching edges do not count.
func CirclesOverlap(a, b Circle) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	r := a.Radius + b.Radius
	return dx*dx+dy*dy < r*r
}

// CircleHitsRect checks a circle against an AABB using the closest point on
// the rectangle.
func CircleHitsRect(c Circle, rect Rect) bool {
	closestX := Clamp(c.X, rect.X, rect.X+rect.W)
	closestY := Clamp(c.Y, rect.Y, rect.Y+rect.H)

	dx := c.X - closestX
	dy := c.Y - closestY
	return dx*dx+dy*dy < c.Radius*c.Radius
}

// CircleHitsAny reports whether c overlaps any of rects.
func CircleHitsAny(c Circle, rects []Rect) bool {
	for _, rect := range rects {
		if CircleHitsRect(c, rect) {
			return true
		}
	}
	return false
}

func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Lerp(from, to, t float64) float64 {
	return from + (to-from)*t
}

// WrapAngle maps a into (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// AngleDelta is the signed shortest rotation from `from` to `to`.
func AngleDelta(from, to float64) float64 {
	return WrapAngle(to - from)
}
