package models

import "math"

// Rect is an axis-aligned rectangle in projected plane coordinates (meters).
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewRect returns the rectangle spanning the two corner pairs, ordering the
// coordinates so Min <= Max on both axes.
func NewRect(x1, y1, x2, y2 float64) Rect {
	return Rect{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

// Width returns the horizontal extent in meters.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent in meters.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Contains reports whether the point lies inside the rectangle.
// Boundaries are inclusive so points on shared tile edges are never lost.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Intersects reports whether the two rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX <= o.MaxX && r.MaxX >= o.MinX &&
		r.MinY <= o.MaxY && r.MaxY >= o.MinY
}

// Expand grows the rectangle by the given margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		MinX: r.MinX - margin,
		MinY: r.MinY - margin,
		MaxX: r.MaxX + margin,
		MaxY: r.MaxY + margin,
	}
}

// IntersectsCircle reports whether the circle at (cx, cy) with radius rad
// overlaps the rectangle.
func (r Rect) IntersectsCircle(cx, cy, rad float64) bool {
	dx := cx - clamp(cx, r.MinX, r.MaxX)
	dy := cy - clamp(cy, r.MinY, r.MaxY)
	return dx*dx+dy*dy <= rad*rad
}

// DistanceSq returns the squared distance from the point to the rectangle,
// zero when the point is inside. Used as the branch-and-bound lower bound
// in nearest-neighbor search.
func (r Rect) DistanceSq(x, y float64) float64 {
	dx := x - clamp(x, r.MinX, r.MaxX)
	dy := y - clamp(y, r.MinY, r.MaxY)
	return dx*dx + dy*dy
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
