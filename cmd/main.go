package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kass/go-field-surface/pkg/batch"
	"github.com/kass/go-field-surface/pkg/boundary"
	"github.com/kass/go-field-surface/pkg/container"
	"github.com/kass/go-field-surface/pkg/export"
	"github.com/kass/go-field-surface/pkg/geotiff"
	"github.com/kass/go-field-surface/pkg/ingest"
	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/preview"
	"github.com/kass/go-field-surface/pkg/proj"
	"github.com/kass/go-field-surface/pkg/quadtree"
	"github.com/kass/go-field-surface/pkg/surface"
)

var (
	verbose bool
	workers int
)

var rootCmd = &cobra.Command{
	Use:   "go-field-surface",
	Short: "Field survey points to georeferenced elevation rasters",
	Long:  `Ingests raw receiver positioning files, builds a tiled triangulated elevation surface and exports it as GeoTIFF tiles, one merged raster, or a portable container.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse positioning files into the spatial index",
	Long:  `Discover and stream-parse raw positioning files, populating the quad-tree index and reporting chunk statistics.`,
	Run:   runIngest,
}

var surfaceCmd = &cobra.Command{
	Use:   "surface",
	Short: "Build and export the elevation surface",
	Long:  `Run the full pipeline: ingest, tile, triangulate, rasterize and export as GeoTIFF files.`,
	Run:   runSurface,
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build the surface and pack it into a portable container",
	Run:   runPack,
}

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Unpack a container into a GeoTIFF",
	Run:   runUnpack,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a PNG preview from a container",
	Run:   runPreview,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a saved index",
	Long:  `Load a saved index and run a region, radius or nearest query against it in plane coordinates.`,
	Run:   runQuery,
}

var (
	inputDir   string
	recursive  bool
	resolution float64
	outPath    string
	refLat     float64
	refLon     float64
	farmName   string
	fieldName  string
	boundFile  string
	mode       string
	inFile     string
	maxDim     int
	indexFile  string

	queryType  string
	queryRect  []float64
	queryAt    []float64
	radius     float64
	outputJSON bool
	limit      int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Worker goroutines (default: logical cores)")

	ingestCmd.Flags().StringVarP(&inputDir, "dir", "d", ".", "Directory with positioning files")
	ingestCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into subdirectories")
	ingestCmd.Flags().Float64Var(&refLat, "ref-lat", 0, "Reference latitude (default: first point)")
	ingestCmd.Flags().Float64Var(&refLon, "ref-lon", 0, "Reference longitude (default: first point)")
	ingestCmd.Flags().StringVarP(&indexFile, "save", "s", "", "Save the populated index to this file")

	surfaceCmd.Flags().StringVarP(&inputDir, "dir", "d", ".", "Directory with positioning files")
	surfaceCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into subdirectories")
	surfaceCmd.Flags().Float64Var(&resolution, "resolution", 1.0, "Output resolution in meters per pixel")
	surfaceCmd.Flags().StringVarP(&outPath, "out", "o", "surface_out", "Output directory")
	surfaceCmd.Flags().Float64Var(&refLat, "ref-lat", 0, "Reference latitude (default: first point)")
	surfaceCmd.Flags().Float64Var(&refLon, "ref-lon", 0, "Reference longitude (default: first point)")
	surfaceCmd.Flags().StringVarP(&boundFile, "boundary", "b", "", "GeoJSON boundary polygon; points outside are dropped")
	surfaceCmd.Flags().StringVarP(&mode, "mode", "m", "auto", "Export mode: tiled, merged or auto")

	packCmd.Flags().StringVarP(&inputDir, "dir", "d", ".", "Directory with positioning files")
	packCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into subdirectories")
	packCmd.Flags().Float64Var(&resolution, "resolution", 1.0, "Output resolution in meters per pixel")
	packCmd.Flags().StringVarP(&outPath, "out", "o", ".", "Output directory")
	packCmd.Flags().StringVar(&farmName, "farm", "", "Farm name")
	packCmd.Flags().StringVar(&fieldName, "field", "", "Field name")
	packCmd.Flags().Float64Var(&refLat, "ref-lat", 0, "Reference latitude (default: first point)")
	packCmd.Flags().Float64Var(&refLon, "ref-lon", 0, "Reference longitude (default: first point)")

	unpackCmd.Flags().StringVarP(&inFile, "file", "f", "", "Container file")
	unpackCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output GeoTIFF path (default: container name .tif)")

	previewCmd.Flags().StringVarP(&inFile, "file", "f", "", "Container file")
	previewCmd.Flags().StringVarP(&outPath, "out", "o", "preview.png", "Output PNG path")
	previewCmd.Flags().IntVar(&maxDim, "max-dim", 1024, "Longest preview side in pixels")

	queryCmd.Flags().StringVarP(&indexFile, "index", "i", "index.gob", "Saved index file")
	queryCmd.Flags().StringVarP(&queryType, "type", "t", "region", "Query type: region, radius, nearest")
	queryCmd.Flags().Float64SliceVar(&queryRect, "rect", nil, "Region as min-x,min-y,max-x,max-y (meters)")
	queryCmd.Flags().Float64SliceVar(&queryAt, "at", nil, "Query point as x,y (meters)")
	queryCmd.Flags().Float64Var(&radius, "radius", 10, "Radius in meters (radius query)")
	queryCmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	queryCmd.Flags().IntVar(&limit, "limit", 100, "Maximum results to display")

	rootCmd.AddCommand(ingestCmd, surfaceCmd, packCmd, unpackCmd, previewCmd, queryCmd)
}

func main() {
	// .env is optional; flags win over environment
	_ = godotenv.Load()
	if workers == 0 {
		if v := os.Getenv("FIELD_SURFACE_WORKERS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				workers = n
			}
		}
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func reference() *models.LatLon {
	if refLat == 0 && refLon == 0 {
		return nil
	}
	return &models.LatLon{Lat: refLat, Lon: refLon}
}

func progressPrinter() models.ProgressFunc {
	if !verbose {
		return nil
	}
	return func(p models.Progress) {
		fmt.Printf("[%s] %5.1f%% %s\n", p.Phase, p.Percent, p.Message)
	}
}

func runIngest(cmd *cobra.Command, args []string) {
	setupLogging()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	index := quadtree.New()
	res := ingest.Ingest(ctx, inputDir, recursive, index, ingest.Options{
		Workers:   workers,
		Reference: reference(),
		Progress:  progressPrinter(),
	})

	fmt.Printf("Files: %d (%d failed)\n", res.FilesSeen, res.FilesFailed)
	fmt.Printf("Points indexed: %d in %v (%.0f pts/s)\n",
		index.Len(), res.Elapsed, float64(index.Len())/res.Elapsed.Seconds())
	fmt.Printf("Chunks: %d\n", len(res.Chunks))
	for _, f := range res.Failures {
		fmt.Printf("  failed: %s: %s\n", f.Unit, f.Err)
	}
	if res.Cancelled {
		fmt.Println("Run cancelled; partial results above.")
	}

	if indexFile != "" {
		if err := index.SaveToFile(indexFile); err != nil {
			log.WithError(err).Fatal("failed to save index")
		}
		fmt.Printf("Index saved to %s\n", indexFile)
	}
}

// buildSurface runs ingest through rasterize and returns the tiles.
func buildSurface(cmd *cobra.Command) ([]*surface.Tile, *quadtree.QuadTree) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	index := quadtree.New()
	ing := ingest.Ingest(ctx, inputDir, recursive, index, ingest.Options{
		Workers:   workers,
		Reference: reference(),
		Progress:  progressPrinter(),
	})
	if index.Len() == 0 {
		log.Fatal("no points ingested")
	}
	fmt.Printf("Ingested %d points from %d files in %v\n", index.Len(), ing.FilesSeen, ing.Elapsed)

	if boundFile != "" {
		applyBoundary(ctx, index)
	}

	extent, _ := index.Bounds()
	plan, err := surface.PlanTiles(extent, index.Len(), 0)
	if err != nil {
		log.WithError(err).Fatal("tile planning failed")
	}
	fmt.Printf("Planned %d tiles (%.0f m edge, %dx%d)\n", len(plan.Tiles), plan.Edge, plan.Cols, plan.Rows)

	tiles, sres := surface.Rasterize(ctx, index, plan, resolution, surface.Options{
		Workers:  workers,
		Progress: progressPrinter(),
	})
	if !sres.Success {
		log.Fatalf("rasterization failed: %v", sres.Failures)
	}
	fmt.Printf("Rasterized %d tiles (%d empty) in %v\n", sres.TilesBuilt, sres.TilesEmpty, sres.Elapsed)
	return tiles, index
}

// applyBoundary drops indexed points outside the boundary polygon and
// rebuilds the index from the points inside.
func applyBoundary(ctx context.Context, index *quadtree.QuadTree) {
	b, err := boundary.FromGeoJSON(boundFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load boundary")
	}
	pts := index.All()
	raw := make([]models.RawPoint, len(pts))
	for i, p := range pts {
		raw[i] = p.RawPoint
	}
	bres := boundary.ClassifyGeodetic(ctx, b, raw, batch.Options{
		Workers:  workers,
		Progress: progressPrinter(),
	})
	index.Clear()
	for _, i := range bres.Inside {
		index.Insert(pts[i])
	}
	fmt.Printf("Boundary filter: %d inside, %d outside\n", len(bres.Inside), len(bres.Outside))
}

func runSurface(cmd *cobra.Command, args []string) {
	setupLogging()
	tiles, index := buildSurface(cmd)

	if err := os.MkdirAll(outPath, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create output directory")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := export.Options{Workers: workers, Progress: progressPrinter(), Reference: surfaceReference(index)}

	chosen := mode
	if chosen == "auto" {
		chosen = export.Recommend(tiles).String()
		fmt.Printf("Export mode: %s (estimated merged size %d MB)\n",
			chosen, export.EstimateMergedBytes(tiles)>>20)
	}

	var res *models.ExportResult
	if chosen == "merged" {
		res = export.WriteMerged(ctx, tiles, filepath.Join(outPath, "surface.tif"), opts)
	} else {
		res = export.WriteTiled(ctx, tiles, outPath, opts)
	}
	if !res.Success {
		log.Fatalf("export failed: %v", res.Failures)
	}
	fmt.Printf("Wrote %d file(s), %d MB in %v\n", res.FilesWritten, res.BytesWritten>>20, res.Elapsed)
	for _, f := range res.Failures {
		fmt.Printf("  failed: %s: %s\n", f.Unit, f.Err)
	}
}

func surfaceReference(index *quadtree.QuadTree) *models.LatLon {
	if r := reference(); r != nil {
		return r
	}
	pts := index.All()
	if len(pts) == 0 {
		return nil
	}
	return &models.LatLon{Lat: pts[0].Lat, Lon: pts[0].Lon}
}

func runPack(cmd *cobra.Command, args []string) {
	setupLogging()
	tiles, index := buildSurface(cmd)

	merged, err := export.Merge(tiles)
	if err != nil {
		log.WithError(err).Fatal("merge failed")
	}

	ref := surfaceReference(index)
	meta := container.Metadata{FarmName: farmName, FieldName: fieldName}
	if ref != nil {
		meta.RefLat, meta.RefLon = ref.Lat, ref.Lon
	}
	path, res := container.Encode(outPath, merged, meta)
	if !res.Success {
		log.Fatalf("pack failed: %v", res.Failures)
	}
	fmt.Printf("Packed %d cells into %s in %v\n", res.PixelCount, path, res.Elapsed)
}

func runUnpack(cmd *cobra.Command, args []string) {
	setupLogging()
	if inFile == "" {
		log.Fatal("--file is required")
	}
	grid, meta, err := container.Decode(inFile)
	if err != nil {
		log.WithError(err).Fatal("failed to decode container")
	}

	out := outPath
	if out == "" {
		out = inFile[:len(inFile)-len(filepath.Ext(inFile))] + ".tif"
	}
	epsg := 0
	if meta.RefLat != 0 || meta.RefLon != 0 {
		epsg = proj.ApproxUTM(meta.RefLat, meta.RefLon).EPSG()
	}
	if err := geotiff.Write(out, grid, epsg); err != nil {
		log.WithError(err).Fatal("failed to write GeoTIFF")
	}
	fmt.Printf("Unpacked %s: %dx%d grid at %g m/px -> %s\n",
		meta.FieldName, meta.Rows, meta.Cols, meta.Resolution, out)
}

func runQuery(cmd *cobra.Command, args []string) {
	setupLogging()
	index := quadtree.New()
	if err := index.LoadFromFile(indexFile); err != nil {
		log.WithError(err).Fatal("failed to load index")
	}
	log.Infof("index loaded with %d points", index.Len())

	var results []models.SurveyPoint
	switch queryType {
	case "region":
		if len(queryRect) != 4 {
			log.Fatal("region query requires --rect min-x,min-y,max-x,max-y")
		}
		results = index.QueryRegion(models.Rect{
			MinX: queryRect[0], MinY: queryRect[1],
			MaxX: queryRect[2], MaxY: queryRect[3],
		})
		fmt.Printf("Region query found %d points\n", len(results))

	case "radius":
		if len(queryAt) != 2 {
			log.Fatal("radius query requires --at x,y")
		}
		results = index.QueryRadius(queryAt[0], queryAt[1], radius)
		fmt.Printf("Radius query (%.1f m) found %d points\n", radius, len(results))

	case "nearest":
		if len(queryAt) != 2 {
			log.Fatal("nearest query requires --at x,y")
		}
		if pt, ok := index.FindNearest(queryAt[0], queryAt[1]); ok {
			results = []models.SurveyPoint{pt}
		}
		fmt.Printf("Found %d nearest point\n", len(results))

	default:
		log.Fatalf("unknown query type: %s", queryType)
	}

	if len(results) > limit {
		fmt.Printf("Showing first %d results (use --limit to see more)\n", limit)
		results = results[:limit]
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.WithError(err).Fatal("failed to encode results")
		}
		return
	}
	for i, pt := range results {
		fmt.Printf("%d. %s: (%.2f, %.2f) alt %.2f m\n",
			i+1, pt.ReceiverID, pt.Easting, pt.Northing, pt.Altitude)
	}
}

func runPreview(cmd *cobra.Command, args []string) {
	setupLogging()
	if inFile == "" {
		log.Fatal("--file is required")
	}
	grid, _, err := container.Decode(inFile)
	if err != nil {
		log.WithError(err).Fatal("failed to decode container")
	}
	if err := preview.Render(grid, outPath, maxDim); err != nil {
		log.WithError(err).Fatal("failed to render preview")
	}
	fmt.Printf("Preview written to %s\n", outPath)
}
