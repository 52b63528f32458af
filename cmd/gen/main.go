// Generates synthetic positioning files for exercising the ingest
// pipeline. Points are scattered over a smooth synthetic terrain around a
// reference location and written as checksummed GGA sentences, one file
// per simulated receiver pass.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const metersPerDegLat = 111_320.0

func main() {
	var (
		numPoints = flag.Int("n", 100_000, "Total points to generate")
		numFiles  = flag.Int("files", 8, "Number of output files")
		outDir    = flag.String("o", "data", "Output directory")
		workers   = flag.Int("w", runtime.NumCPU(), "Number of worker goroutines")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		refLat    = flag.Float64("lat", 52.0, "Reference latitude")
		refLon    = flag.Float64("lon", 5.0, "Reference longitude")
		extent    = flag.Float64("extent", 800, "Field edge length in meters")
	)
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	log.Printf("Generating %d points into %d files with %d workers...\n",
		*numPoints, *numFiles, *workers)

	perFile := *numPoints / *numFiles
	remainder := *numPoints % *numFiles

	type job struct {
		path   string
		points int
		seed   int64
	}
	root := rand.New(rand.NewSource(*seed))
	jobs := make(chan job, *numFiles)
	var wg sync.WaitGroup

	start := time.Now()
	wg.Add(*workers)
	for w := 0; w < *workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := writeFile(j.path, j.points, j.seed, *refLat, *refLon, *extent); err != nil {
					log.Printf("Failed to write %s: %v\n", j.path, err)
				}
			}
		}()
	}
	for i := 0; i < *numFiles; i++ {
		n := perFile
		if i < remainder {
			n++
		}
		jobs <- job{
			path:   filepath.Join(*outDir, fmt.Sprintf("pass_%03d.nmea", i)),
			points: n,
			seed:   root.Int63(),
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("Wrote %d points in %v (%.0f pts/sec)\n",
		*numPoints, elapsed, float64(*numPoints)/elapsed.Seconds())
}

func writeFile(path string, n int, seed int64, refLat, refLon, extent float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	r := rand.New(rand.NewSource(seed))
	cosRef := math.Cos(refLat * math.Pi / 180)

	t := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		x := r.Float64() * extent
		y := r.Float64() * extent
		lat := refLat + y/metersPerDegLat
		lon := refLon + x/(metersPerDegLat*cosRef)
		alt := 100 + 5*math.Sin(x/80) + 3*math.Cos(y/60) + r.NormFloat64()*0.02

		if _, err := fmt.Fprintln(w, ggaSentence(t, lat, lon, alt)); err != nil {
			return err
		}
		t = t.Add(time.Second)
	}
	return w.Flush()
}

// ggaSentence formats a GGA fix with a valid checksum. Quality is RTK
// fixed so the generated data passes ingest validation untouched.
func ggaSentence(t time.Time, lat, lon, alt float64) string {
	body := fmt.Sprintf("GPGGA,%s,%s,%s,4,12,0.8,%.2f,M,0.0,M,1.0,0000",
		t.Format("150405.00"), nmeaLat(lat), nmeaLon(lon), alt)
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

// nmeaLat renders ddmm.mmmmm with hemisphere.
func nmeaLat(lat float64) string {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
		lat = -lat
	}
	deg := math.Floor(lat)
	return fmt.Sprintf("%02.0f%08.5f,%s", deg, (lat-deg)*60, hemi)
}

// nmeaLon renders dddmm.mmmmm with hemisphere.
func nmeaLon(lon float64) string {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
		lon = -lon
	}
	deg := math.Floor(lon)
	return fmt.Sprintf("%03.0f%08.5f,%s", deg, (lon-deg)*60, hemi)
}
