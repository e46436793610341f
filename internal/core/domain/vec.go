package domain

import "math"

// minSeparation replaces a zero distance between two orbs so the
// repulsion direction stays defined.
const minSeparation = 0.0001

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{X: v.X * k, Y: v.Y * k}
}

func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalized returns the unit vector pointing along v. A zero vector
// is treated as having length minSeparation.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l < minSeparation {
		l = minSeparation
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// Clamp bounds both components to [min, max].
func (v Vec2) Clamp(min, max float64) Vec2 {
	return Vec2{
		X: clampFloat(v.X, min, max),
		Y: clampFloat(v.Y, min, max),
	}
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
