// Package preview renders a quick-look PNG of an elevation grid with a
// hypsometric color ramp. It is a convenience output for operators, not
// part of the export path.
package preview

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/kass/go-field-surface/pkg/raster"
)

// noDataColor marks cells without an interpolated value.
var noDataColor = color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

// ramp is a simple hypsometric ramp from low (green) through yellow to
// high (brown).
func ramp(t float64) color.NRGBA {
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}
	if t < 0.5 {
		// green -> yellow
		f := t * 2
		return color.NRGBA{R: uint8(60 + 195*f), G: uint8(140 + 80*f), B: 60, A: 0xff}
	}
	// yellow -> brown
	f := (t - 0.5) * 2
	return color.NRGBA{R: uint8(255 - 115*f), G: uint8(220 - 135*f), B: uint8(60 - 20*f), A: 0xff}
}

// Render writes a PNG preview of the grid, downscaled so the longer side
// does not exceed maxDim.
func Render(grid *raster.Grid, path string, maxDim int) error {
	if grid == nil || grid.Rows <= 0 || grid.Cols <= 0 {
		return fmt.Errorf("preview: empty grid")
	}
	if maxDim <= 0 {
		maxDim = 1024
	}

	minE, maxE, ok := grid.MinMax()
	span := float64(maxE - minE)
	if span <= 0 {
		span = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, grid.Cols, grid.Rows))
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			v := grid.At(row, col)
			if !ok || v == raster.NoData {
				img.SetNRGBA(col, row, noDataColor)
				continue
			}
			img.SetNRGBA(col, row, ramp(float64(v-minE)/span))
		}
	}

	w, h := grid.Cols, grid.Rows
	if w > maxDim || h > maxDim {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		scaled := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)
		img = scaled
	}

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)
	dc.SetLineWidth(1)
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawRectangle(0.5, 0.5, float64(w)-1, float64(h)-1)
	dc.Stroke()

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("preview: save %s: %w", path, err)
	}
	return nil
}
