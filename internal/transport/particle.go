package transport

import "math"

// Vec2 is a 2D real-valued coordinate or displacement.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Len returns the Euclidean length of the vector.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec2) finite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Bounds is the rectangular simulation domain [0, Width] x [0, Height].
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the domain, where the extinction guard
// injects its particle.
func (b Bounds) Center() Vec2 {
	return Vec2{X: b.Width / 2, Y: b.Height / 2}
}

// Contains reports whether p lies inside the closed domain.
func (b Bounds) Contains(p Vec2) bool {
	return p.X >= 0 && p.X <= b.Width && p.Y >= 0 && p.Y <= b.Height
}

// ParticleID identifies a particle for the lifetime of a kernel.
type ParticleID uint64

// Particle is a neutron travelling through the domain.
// Distance is the odometer since the last interaction attempt.
type Particle struct {
	ID       ParticleID `json:"id"`
	Position Vec2       `json:"position"`
	Velocity Vec2       `json:"velocity"`
	Distance float64    `json:"distance"`
}
