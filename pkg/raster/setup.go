package raster

import (
	"archive/zip"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

var setupOnce sync.Once

// Setup performs the one-time process-wide codec registration: the DEFLATE
// implementation used for container archives is swapped for the klauspost
// one on both the compress and decompress side. Every raster consumer
// (exporters, container codec) funnels through this single idempotent,
// thread-safe barrier; calling it more than once is free.
func Setup() {
	setupOnce.Do(func() {
		zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.BestSpeed)
		})
		zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
			return flate.NewReader(r)
		})
	})
}
