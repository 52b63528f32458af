// Benchmark harness comparing the quad-tree index against an R-tree
// baseline on synthetic survey points. Useful for sizing worker counts
// and validating that query latency holds up at field-scale densities.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/quadtree"
)

const rectTolerance = 0.01 // meters, point-to-rect inflation for the R-tree

type result struct {
	Backend       string
	QueryType     string
	TotalQueries  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
}

func main() {
	var (
		numPoints  = flag.Int("points", 200_000, "Synthetic points to index")
		numQueries = flag.Int("n", 1000, "Queries per backend")
		workers    = flag.Int("w", runtime.NumCPU(), "Concurrent query workers")
		extent     = flag.Float64("extent", 1000, "Field edge length in meters")
		boxSize    = flag.Float64("box", 50, "Region query edge in meters")
		radius     = flag.Float64("radius", 25, "Radius query radius in meters")
		queryType  = flag.String("t", "mixed", "Query type: region, radius, nearest, mixed")
		seed       = flag.Int64("seed", 1, "Point generator seed")
	)
	flag.Parse()

	log.Printf("Generating %d synthetic points over %gx%g m...\n", *numPoints, *extent, *extent)
	points := generatePoints(*numPoints, *extent, *seed)

	qt := quadtree.New()
	start := time.Now()
	for _, pt := range points {
		qt.Insert(pt)
	}
	qtBuild := time.Since(start)

	rt := rtreego.NewTree(2, 25, 50)
	start = time.Now()
	for i := range points {
		rt.Insert(&spatialPoint{&points[i]})
	}
	rtBuild := time.Since(start)

	log.Printf("Build: quadtree %v, rtree %v\n", qtBuild, rtBuild)
	log.Printf("Running %d %s queries with %d workers per backend...\n",
		*numQueries, *queryType, *workers)

	types := []string{*queryType}
	if *queryType == "mixed" {
		types = []string{"region", "radius", "nearest"}
	}

	var results []result
	for _, t := range types {
		results = append(results,
			run("quadtree", t, *numQueries, *workers, quadtreeQuery(qt, t, *extent, *boxSize, *radius)),
			run("rtree", t, *numQueries, *workers, rtreeQuery(rt, t, *extent, *boxSize, *radius)),
		)
	}

	fmt.Println("\n=== Benchmark Results ===")
	fmt.Printf("%-10s %-8s %10s %12s %12s %12s %12s %12s\n",
		"Backend", "Query", "Queries", "Total", "Avg", "Min", "Max", "q/s")
	for _, r := range results {
		fmt.Printf("%-10s %-8s %10d %12v %12v %12v %12v %12.0f\n",
			r.Backend, r.QueryType, r.TotalQueries, r.TotalDuration.Round(time.Millisecond),
			r.AvgDuration, r.MinDuration, r.MaxDuration, r.QueriesPerSec)
	}
	fmt.Printf("\nWorkers: %d, CPU cores: %d\n", *workers, runtime.NumCPU())
}

// spatialPoint adapts a survey point to the R-tree's item interface.
type spatialPoint struct {
	pt *models.SurveyPoint
}

func (s *spatialPoint) Bounds() *rtreego.Rect {
	return rtreego.Point{s.pt.Easting, s.pt.Northing}.ToRect(rectTolerance)
}

// generatePoints lays random plane positions over a smooth synthetic
// terrain so nearest and interpolation results stay realistic.
func generatePoints(n int, extent float64, seed int64) []models.SurveyPoint {
	r := rand.New(rand.NewSource(seed))
	points := make([]models.SurveyPoint, n)
	for i := range points {
		x := r.Float64() * extent
		y := r.Float64() * extent
		alt := 100 + 5*math.Sin(x/80) + 3*math.Cos(y/60)
		points[i] = models.SurveyPoint{
			RawPoint: models.RawPoint{
				ReceiverID: "bench",
				Altitude:   alt,
				FixQuality: 4,
				Satellites: 12,
			},
			Easting:  x,
			Northing: y,
		}
	}
	return points
}

// queryFn runs one query with the given per-worker RNG and reports how
// many results it produced.
type queryFn func(r *rand.Rand) int

func quadtreeQuery(qt *quadtree.QuadTree, queryType string, extent, boxSize, radius float64) queryFn {
	switch queryType {
	case "region":
		return func(r *rand.Rand) int {
			x := r.Float64() * (extent - boxSize)
			y := r.Float64() * (extent - boxSize)
			return len(qt.QueryRegion(models.Rect{MinX: x, MinY: y, MaxX: x + boxSize, MaxY: y + boxSize}))
		}
	case "radius":
		return func(r *rand.Rand) int {
			return len(qt.QueryRadius(r.Float64()*extent, r.Float64()*extent, radius))
		}
	case "nearest":
		return func(r *rand.Rand) int {
			if _, ok := qt.FindNearest(r.Float64()*extent, r.Float64()*extent); ok {
				return 1
			}
			return 0
		}
	default:
		log.Fatalf("Unknown query type: %s", queryType)
		return nil
	}
}

func rtreeQuery(rt *rtreego.Rtree, queryType string, extent, boxSize, radius float64) queryFn {
	switch queryType {
	case "region":
		return func(r *rand.Rand) int {
			x := r.Float64() * (extent - boxSize)
			y := r.Float64() * (extent - boxSize)
			rect, err := rtreego.NewRect(rtreego.Point{x, y}, []float64{boxSize, boxSize})
			if err != nil {
				return 0
			}
			return len(rt.SearchIntersect(rect))
		}
	case "radius":
		return func(r *rand.Rand) int {
			cx := r.Float64() * extent
			cy := r.Float64() * extent
			rect, err := rtreego.NewRect(rtreego.Point{cx - radius, cy - radius}, []float64{2 * radius, 2 * radius})
			if err != nil {
				return 0
			}
			// bbox candidates filtered by true distance, same semantics
			// as the quad-tree's radius query
			count := 0
			for _, item := range rt.SearchIntersect(rect) {
				p := item.(*spatialPoint).pt
				dx, dy := p.Easting-cx, p.Northing-cy
				if dx*dx+dy*dy <= radius*radius {
					count++
				}
			}
			return count
		}
	case "nearest":
		return func(r *rand.Rand) int {
			return len(rt.NearestNeighbors(1, rtreego.Point{r.Float64() * extent, r.Float64() * extent}))
		}
	default:
		log.Fatalf("Unknown query type: %s", queryType)
		return nil
	}
}

func run(backend, queryType string, numQueries, workers int, fn queryFn) result {
	var (
		totalResults atomic.Int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		totalDur     time.Duration
		mu           sync.Mutex
	)

	startTime := time.Now()
	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(rand.Int63()))

			for range queryCh {
				queryStart := time.Now()
				n := fn(r)
				queryDuration := time.Since(queryStart)

				totalResults.Add(int64(n))
				mu.Lock()
				totalDur += queryDuration
				if queryDuration < minDuration {
					minDuration = queryDuration
				}
				if queryDuration > maxDuration {
					maxDuration = queryDuration
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	return result{
		Backend:       backend,
		QueryType:     queryType,
		TotalQueries:  numQueries,
		TotalDuration: totalDuration,
		AvgDuration:   totalDur / time.Duration(numQueries),
		QueriesPerSec: float64(numQueries) / totalDuration.Seconds(),
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		TotalResults:  totalResults.Load(),
	}
}
