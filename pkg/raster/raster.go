// Package raster holds the elevation grid model shared by the surface
// engine, the exporters and the container codec, plus the single
// process-wide initialization path for codec registration.
package raster

import "math"

// NoData is the reserved elevation value marking a cell with no
// interpolated value available.
const NoData float32 = -9999

// Grid is a row-major float32 elevation grid. The origin is the northwest
// corner: X grows east by Resolution per column, Y grows south by
// Resolution per row.
type Grid struct {
	Rows       int
	Cols       int
	OriginX    float64 // west edge, meters
	OriginY    float64 // north edge, meters
	Resolution float64 // meters per pixel
	Values     []float32
}

// NewGrid allocates a grid with every cell set to NoData.
func NewGrid(rows, cols int, originX, originY, resolution float64) *Grid {
	values := make([]float32, rows*cols)
	for i := range values {
		values[i] = NoData
	}
	return &Grid{
		Rows:       rows,
		Cols:       cols,
		OriginX:    originX,
		OriginY:    originY,
		Resolution: resolution,
		Values:     values,
	}
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float32 {
	return g.Values[row*g.Cols+col]
}

// Set writes the value at (row, col).
func (g *Grid) Set(row, col int, v float32) {
	g.Values[row*g.Cols+col] = v
}

// CellCenter returns the plane coordinates of the center of cell
// (row, col).
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.Resolution
	y = g.OriginY - (float64(row)+0.5)*g.Resolution
	return x, y
}

// MinMax returns the elevation extrema over all data cells. ok is false
// when the grid holds no data cells at all.
func (g *Grid) MinMax() (min, max float32, ok bool) {
	min, max = math.MaxFloat32, -math.MaxFloat32
	for _, v := range g.Values {
		if v == NoData {
			continue
		}
		ok = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

// DataCells returns the number of cells holding an interpolated value.
func (g *Grid) DataCells() int {
	n := 0
	for _, v := range g.Values {
		if v != NoData {
			n++
		}
	}
	return n
}
