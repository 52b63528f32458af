// Example walkthrough of the library API: index a small synthetic field,
// run spatial queries, build the tiled surface and write the outputs.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/kass/go-field-surface/pkg/container"
	"github.com/kass/go-field-surface/pkg/export"
	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/quadtree"
	"github.com/kass/go-field-surface/pkg/surface"
)

func main() {
	ctx := context.Background()

	// Index a 200x200 m field of synthetic survey points
	index := quadtree.New()
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20_000; i++ {
		x := r.Float64() * 200
		y := r.Float64() * 200
		index.Insert(models.SurveyPoint{
			RawPoint: models.RawPoint{
				ReceiverID: "demo",
				Altitude:   100 + 4*math.Sin(x/40) + 2*math.Cos(y/30),
				FixQuality: 4,
				Satellites: 12,
			},
			Easting:  x,
			Northing: y,
		})
	}
	fmt.Printf("Indexed %d points\n\n", index.Len())

	// Example 1: points in a region
	fmt.Println("=== Region Query ===")
	region := models.Rect{MinX: 50, MinY: 50, MaxX: 60, MaxY: 60}
	hits := index.QueryRegion(region)
	fmt.Printf("Found %d points in a 10x10 m region\n", len(hits))

	// Example 2: points within 5 m of the field center
	fmt.Println("\n=== Radius Query ===")
	hits = index.QueryRadius(100, 100, 5)
	fmt.Printf("Found %d points within 5 m of the center\n", len(hits))

	// Example 3: nearest point to a corner
	fmt.Println("\n=== Nearest Query ===")
	if pt, ok := index.FindNearest(0, 0); ok {
		fmt.Printf("Nearest point to the origin: (%.2f, %.2f) at %.2f m\n",
			pt.Easting, pt.Northing, pt.Altitude)
	}

	// Build the tiled surface at half-meter resolution
	fmt.Println("\n=== Surface ===")
	extent, _ := index.Bounds()
	plan, err := surface.PlanTiles(extent, index.Len(), 0)
	if err != nil {
		log.Fatal(err)
	}
	tiles, sres := surface.Rasterize(ctx, index, plan, 0.5, surface.Options{})
	if !sres.Success {
		log.Fatalf("rasterization failed: %v", sres.Failures)
	}
	fmt.Printf("Rasterized %d tiles in %v\n", sres.TilesBuilt, sres.Elapsed)

	// Merge and write a single GeoTIFF
	merged, err := export.Merge(tiles)
	if err != nil {
		log.Fatal(err)
	}
	res := export.WriteMerged(ctx, tiles, "demo_surface.tif", export.Options{})
	if !res.Success {
		log.Fatalf("export failed: %v", res.Failures)
	}
	fmt.Printf("Wrote demo_surface.tif (%d cells)\n", merged.Rows*merged.Cols)

	// Pack the grid into a portable container
	fmt.Println("\n=== Container ===")
	path, cres := container.Encode(".", merged, container.Metadata{
		FarmName:  "Demo Farm",
		FieldName: "North Field",
		RefLat:    52.0,
		RefLon:    5.0,
	})
	if !cres.Success {
		log.Fatalf("pack failed: %v", cres.Failures)
	}
	fmt.Printf("Packed into %s\n", path)

	// And read it back
	grid, meta, err := container.Decode(path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Decoded %s/%s: %dx%d grid at %g m/px\n",
		meta.FarmName, meta.FieldName, grid.Rows, grid.Cols, grid.Resolution)
}
