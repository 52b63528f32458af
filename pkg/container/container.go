// Package container bundles an elevation grid with its metadata into a
// single portable archive for field transfer, and decodes such archives
// back. The metadata member is always stored uncompressed so it stays
// readable whatever compression the elevation block uses.
package container

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kass/go-field-surface/pkg/models"
	"github.com/kass/go-field-surface/pkg/raster"
)

// Version identifies the container layout.
const Version = "1.0"

// Ext is the archive file extension.
const Ext = ".fsz"

// Archive member names (layout is bit-exact; do not rename).
const (
	memberMetadata      = "metadata"
	memberElevation     = "elevation"
	memberProjection    = "projection-info"
	memberDocumentation = "documentation"
)

// Metadata is the structured header of a container.
type Metadata struct {
	Version    string      `json:"version"`
	CreatedAt  time.Time   `json:"created_at"`
	FarmName   string      `json:"farm_name"`
	FieldName  string      `json:"field_name"`
	RefLat     float64     `json:"ref_lat"`
	RefLon     float64     `json:"ref_lon"`
	Resolution float64     `json:"resolution"`
	Rows       int         `json:"rows"`
	Cols       int         `json:"cols"`
	MinElev    float64     `json:"min_elev"`
	MaxElev    float64     `json:"max_elev"`
	Bounds     models.Rect `json:"bounds"`
	PointCount int         `json:"point_count"` // rows*cols, a decode checksum
}

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)
	multiSep     = regexp.MustCompile(`[_\- ]{2,}`)
)

// SanitizeName strips filesystem-invalid characters and collapses repeated
// separators so operator-entered names are safe in file names.
func SanitizeName(s string) string {
	s = invalidChars.ReplaceAllString(s, "")
	s = multiSep.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_- ")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// FileName builds the deterministic archive name from sanitized names and
// the date.
func FileName(farm, field string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s",
		SanitizeName(farm), SanitizeName(field), t.Format("20060102"), Ext)
}

// Encode writes the grid and metadata as an archive inside dir, named
// deterministically, and returns the archive path.
func Encode(dir string, grid *raster.Grid, meta Metadata) (string, *models.DatasetResult) {
	start := time.Now()
	res := &models.DatasetResult{}
	res.Success = true
	raster.Setup()

	if grid == nil || grid.Rows <= 0 || grid.Cols <= 0 {
		res.Fail("input", fmt.Errorf("empty grid"))
		res.Elapsed = time.Since(start)
		return "", res
	}

	meta.Version = Version
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Resolution = grid.Resolution
	meta.Rows = grid.Rows
	meta.Cols = grid.Cols
	meta.PointCount = grid.Rows * grid.Cols
	if min, max, ok := grid.MinMax(); ok {
		meta.MinElev = float64(min)
		meta.MaxElev = float64(max)
	}
	meta.Bounds = models.Rect{
		MinX: grid.OriginX,
		MaxX: grid.OriginX + float64(grid.Cols)*grid.Resolution,
		MaxY: grid.OriginY,
		MinY: grid.OriginY - float64(grid.Rows)*grid.Resolution,
	}

	path := filepath.Join(dir, FileName(meta.FarmName, meta.FieldName, meta.CreatedAt))
	if err := writeArchive(path, grid, meta); err != nil {
		res.Fail(path, err)
		res.Elapsed = time.Since(start)
		return "", res
	}
	res.Path = path
	res.PixelCount = meta.PointCount
	res.Elapsed = time.Since(start)
	return path, res
}

func writeArchive(path string, grid *raster.Grid, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	// metadata first, and always STORED: a decoder must be able to read
	// it even when it cannot decompress the elevation block
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := addMember(zw, memberMetadata, metaBytes, zip.Store); err != nil {
		return err
	}
	if err := addMember(zw, memberElevation, elevationBlock(grid), zip.Deflate); err != nil {
		return err
	}
	if err := addMember(zw, memberProjection, projectionBlock(meta), zip.Deflate); err != nil {
		return err
	}
	if err := addMember(zw, memberDocumentation, documentationBlock(meta), zip.Deflate); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func addMember(zw *zip.Writer, name string, data []byte, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create member %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write member %s: %w", name, err)
	}
	return nil
}

// elevationBlock is the bit-exact binary layout: little-endian int32 row
// count, int32 column count, then rows*cols float32 values row-major from
// the northwest origin.
func elevationBlock(grid *raster.Grid) []byte {
	buf := make([]byte, 8+len(grid.Values)*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(grid.Rows)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(grid.Cols)))
	for i, v := range grid.Values {
		binary.LittleEndian.PutUint32(buf[8+i*4:], math.Float32bits(v))
	}
	return buf
}

func projectionBlock(meta Metadata) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "reference_lat=%.8f\n", meta.RefLat)
	fmt.Fprintf(&b, "reference_lon=%.8f\n", meta.RefLon)
	fmt.Fprintf(&b, "resolution=%g\n", meta.Resolution)
	fmt.Fprintf(&b, "bounds_min_x=%g\n", meta.Bounds.MinX)
	fmt.Fprintf(&b, "bounds_min_y=%g\n", meta.Bounds.MinY)
	fmt.Fprintf(&b, "bounds_max_x=%g\n", meta.Bounds.MaxX)
	fmt.Fprintf(&b, "bounds_max_y=%g\n", meta.Bounds.MaxY)
	fmt.Fprintf(&b, "projection=local_tangent_plane\n")
	fmt.Fprintf(&b, "units=meters\n")
	return []byte(b.String())
}

func documentationBlock(meta Metadata) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Elevation surface package (format %s)\n\n", meta.Version)
	fmt.Fprintf(&b, "Farm:  %s\nField: %s\n", meta.FarmName, meta.FieldName)
	fmt.Fprintf(&b, "Created: %s\n", meta.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Grid: %d rows x %d cols at %g m/px\n", meta.Rows, meta.Cols, meta.Resolution)
	fmt.Fprintf(&b, "Elevation range: %.2f .. %.2f m\n", meta.MinElev, meta.MaxElev)
	fmt.Fprintf(&b, "\nThe elevation member is little-endian binary: int32 rows,\n")
	fmt.Fprintf(&b, "int32 cols, then rows*cols float32 values, row-major, NW origin.\n")
	fmt.Fprintf(&b, "Cells with no interpolated value hold %g.\n", raster.NoData)
	return []byte(b.String())
}

// Decode reads an archive back into a grid and its metadata. It validates
// the elevation block size against the declared dimensions and the
// declared point count, both decoder-side checksums.
func Decode(path string) (*raster.Grid, *Metadata, error) {
	raster.Setup()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	metaBytes, err := readMember(&zr.Reader, memberMetadata)
	if err != nil {
		return nil, nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	elev, err := readMember(&zr.Reader, memberElevation)
	if err != nil {
		return nil, &meta, err
	}
	if len(elev) < 8 {
		return nil, &meta, fmt.Errorf("elevation block truncated: %d bytes", len(elev))
	}
	rows := int(int32(binary.LittleEndian.Uint32(elev[0:])))
	cols := int(int32(binary.LittleEndian.Uint32(elev[4:])))
	if rows <= 0 || cols <= 0 {
		return nil, &meta, fmt.Errorf("elevation block declares %dx%d grid", rows, cols)
	}
	if want := 8 + rows*cols*4; len(elev) != want {
		return nil, &meta, fmt.Errorf("elevation block size %d, want %d", len(elev), want)
	}
	if rows*cols != meta.PointCount {
		return nil, &meta, fmt.Errorf("grid %dx%d disagrees with declared point count %d",
			rows, cols, meta.PointCount)
	}

	grid := &raster.Grid{
		Rows:       rows,
		Cols:       cols,
		OriginX:    meta.Bounds.MinX,
		OriginY:    meta.Bounds.MaxY,
		Resolution: meta.Resolution,
		Values:     make([]float32, rows*cols),
	}
	for i := range grid.Values {
		grid.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(elev[8+i*4:]))
	}
	return grid, &meta, nil
}

func readMember(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return nil, fmt.Errorf("read member %s: %w", name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("archive missing member %s", name)
}
