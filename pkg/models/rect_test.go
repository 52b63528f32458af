package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRectOrdersCorners(t *testing.T) {
	r := NewRect(10, 20, -5, 3)
	assert.Equal(t, Rect{MinX: -5, MinY: 3, MaxX: 10, MaxY: 20}, r)
	assert.Equal(t, 15.0, r.Width())
	assert.Equal(t, 17.0, r.Height())
}

func TestRectContains(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	assert.True(t, r.Contains(5, 5))
	assert.True(t, r.Contains(0, 0), "boundaries are inclusive")
	assert.True(t, r.Contains(10, 10))
	assert.False(t, r.Contains(10.001, 5))
	assert.False(t, r.Contains(5, -0.001))
}

func TestRectIntersects(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	assert.True(t, r.Intersects(Rect{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15}))
	assert.True(t, r.Intersects(Rect{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}), "touching edges intersect")
	assert.True(t, r.Intersects(Rect{MinX: 2, MinY: 2, MaxX: 8, MaxY: 8}), "containment is intersection")
	assert.False(t, r.Intersects(Rect{MinX: 11, MinY: 0, MaxX: 20, MaxY: 10}))
}

func TestRectExpand(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}.Expand(2)
	assert.Equal(t, Rect{MinX: -2, MinY: -2, MaxX: 12, MaxY: 12}, r)
}

func TestRectIntersectsCircle(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	assert.True(t, r.IntersectsCircle(5, 5, 1), "center inside")
	assert.True(t, r.IntersectsCircle(12, 5, 2), "circle touches the east edge")
	assert.False(t, r.IntersectsCircle(15, 5, 2))
	// the corner is farther than the edge
	assert.False(t, r.IntersectsCircle(12, 12, 2))
	assert.True(t, r.IntersectsCircle(12, 12, 3))
}

func TestRectDistanceSq(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	assert.Zero(t, r.DistanceSq(5, 5), "inside is distance zero")
	assert.Zero(t, r.DistanceSq(10, 10))
	assert.Equal(t, 4.0, r.DistanceSq(12, 5))
	assert.Equal(t, 8.0, r.DistanceSq(12, 12))
}

func TestRunStatusFail(t *testing.T) {
	s := RunStatus{Success: true}
	s.Fail("tile_0_0", errors.New("boom"))

	assert.False(t, s.Success)
	assert.Len(t, s.Failures, 1)
	assert.Equal(t, "tile_0_0", s.Failures[0].Unit)
	assert.Equal(t, "boom", s.Failures[0].Err)
}

func TestProgressFuncNilSafe(t *testing.T) {
	var fn ProgressFunc
	assert.NotPanics(t, func() {
		fn.Report("phase", 50, "msg")
	})

	var got Progress
	fn = func(p Progress) { got = p }
	fn.Report("ingest", 42.5, "halfway")
	assert.Equal(t, Progress{Phase: "ingest", Percent: 42.5, Message: "halfway"}, got)
}
