package models

import "time"

// UnitFailure records a single per-unit failure (one file, one tile, one
// write) that did not abort the run.
type UnitFailure struct {
	Unit string `json:"unit"` // file path, tile name, ...
	Err  string `json:"err"`
}

// RunStatus is the common trailer of every result envelope.
type RunStatus struct {
	Success   bool          `json:"success"`
	Cancelled bool          `json:"cancelled"`
	Elapsed   time.Duration `json:"elapsed"`
	Failures  []UnitFailure `json:"failures,omitempty"`
}

// Fail marks the status as a hard failure with a single recorded cause.
func (s *RunStatus) Fail(unit string, err error) {
	s.Success = false
	s.Failures = append(s.Failures, UnitFailure{Unit: unit, Err: err.Error()})
}

// FilterResult is the envelope of a batched filter run. Kept and Excluded
// are explicit index sets into the input slice; together they cover every
// item of every completed batch, and Kept+Excluded == N on an uncancelled
// run.
type FilterResult struct {
	RunStatus
	Kept     []int `json:"kept"`
	Excluded []int `json:"excluded"`
}

// ProjectionResult is the envelope of a batched projection run.
type ProjectionResult struct {
	RunStatus
	Projected int `json:"projected"`
}

// BoundaryResult is the envelope of a polygon membership run.
type BoundaryResult struct {
	RunStatus
	Inside  []int `json:"inside"`
	Outside []int `json:"outside"`
}

// ChunkStats carries the precomputed statistics of one finalized ingestion
// chunk.
type ChunkStats struct {
	Count  int     `json:"count"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	MinAlt float64 `json:"min_alt"`
	MaxAlt float64 `json:"max_alt"`
	AvgAlt float64 `json:"avg_alt"`
}

// IngestResult is the envelope of a streaming ingestion run.
type IngestResult struct {
	RunStatus
	FilesSeen   int          `json:"files_seen"`
	FilesFailed int          `json:"files_failed"`
	Points      []RawPoint   `json:"-"`
	Chunks      []ChunkStats `json:"chunks"`
	BytesRead   int64        `json:"bytes_read"`
}

// SurfaceResult is the envelope of a tiled rasterization run.
type SurfaceResult struct {
	RunStatus
	TilesPlanned int `json:"tiles_planned"`
	TilesBuilt   int `json:"tiles_built"`
	TilesEmpty   int `json:"tiles_empty"`
}

// ExportResult is the envelope of a tiled or merged raster export.
type ExportResult struct {
	RunStatus
	FilesWritten int      `json:"files_written"`
	Paths        []string `json:"paths,omitempty"`
	BytesWritten int64    `json:"bytes_written"`
}

// DatasetResult is the envelope of a container encode/decode.
type DatasetResult struct {
	RunStatus
	Path       string `json:"path"`
	PixelCount int    `json:"pixel_count"`
}
