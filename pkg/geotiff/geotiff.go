// Package geotiff writes single-band float32 elevation rasters as
// georeferenced TIFF files. The encoder is self-contained: little-endian
// classic TIFF, one strip, uncompressed samples, with the GeoTIFF
// ModelPixelScale/ModelTiepoint/GeoKeyDirectory tags and a GDAL-style
// no-data tag so downstream GIS tooling picks the sentinel up.
package geotiff

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/kass/go-field-surface/pkg/raster"
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// Tags used by the encoder.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
)

// GeoKey ids.
const (
	keyModelType     = 1024
	keyRasterType    = 1025
	keyProjectedCS   = 3072
	modelProjected   = 1
	rasterPixelIsArea = 1
	// userDefined marks a CRS the key directory cannot name; consumers
	// fall back to the tiepoint/scale alone.
	userDefined = 32767
)

type entry struct {
	tag   uint16
	ftype uint16
	count uint32
	// inline value, or offset patched in once the data area is laid out
	value uint32
	data  []byte // external payload, nil when the value is inline
}

// Write encodes the grid to path. epsg georeferences the raster; pass 0
// when no EPSG code is resolvable and the file is written with a
// user-defined CRS key instead of failing.
func Write(path string, g *raster.Grid, epsg int) error {
	raster.Setup()

	if g == nil || g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("geotiff: empty grid")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("geotiff: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)
	if err := encode(w, g, epsg); err != nil {
		return fmt.Errorf("geotiff: encode %s: %w", path, err)
	}
	return w.Flush()
}

func encode(w *bufio.Writer, g *raster.Grid, epsg int) error {
	le := binary.LittleEndian
	stripBytes := uint32(g.Rows * g.Cols * 4)

	csKey := uint16(userDefined)
	if epsg > 0 && epsg <= math.MaxUint16 {
		csKey = uint16(epsg)
	}
	geoKeys := shortsToBytes([]uint16{
		1, 1, 0, 3, // version, revision, minor, key count
		keyModelType, 0, 1, modelProjected,
		keyRasterType, 0, 1, rasterPixelIsArea,
		keyProjectedCS, 0, 1, csKey,
	})
	pixelScale := doublesToBytes([]float64{g.Resolution, g.Resolution, 0})
	// raster (0,0) pins to the northwest corner of the extent
	tiepoint := doublesToBytes([]float64{0, 0, 0, g.OriginX, g.OriginY, 0})
	noData := append([]byte(fmt.Sprintf("%d", int(raster.NoData))), 0)

	entries := []entry{
		{tag: tagImageWidth, ftype: typeLong, count: 1, value: uint32(g.Cols)},
		{tag: tagImageLength, ftype: typeLong, count: 1, value: uint32(g.Rows)},
		{tag: tagBitsPerSample, ftype: typeShort, count: 1, value: 32},
		{tag: tagCompression, ftype: typeShort, count: 1, value: 1},
		{tag: tagPhotometric, ftype: typeShort, count: 1, value: 1},
		{tag: tagStripOffsets, ftype: typeLong, count: 1}, // patched below
		{tag: tagSamplesPerPixel, ftype: typeShort, count: 1, value: 1},
		{tag: tagRowsPerStrip, ftype: typeLong, count: 1, value: uint32(g.Rows)},
		{tag: tagStripByteCounts, ftype: typeLong, count: 1, value: stripBytes},
		{tag: tagPlanarConfig, ftype: typeShort, count: 1, value: 1},
		{tag: tagSampleFormat, ftype: typeShort, count: 1, value: 3}, // IEEE float
		{tag: tagModelPixelScale, ftype: typeDouble, count: 3, data: pixelScale},
		{tag: tagModelTiepoint, ftype: typeDouble, count: 6, data: tiepoint},
		{tag: tagGeoKeyDirectory, ftype: typeShort, count: uint32(len(geoKeys) / 2), data: geoKeys},
		{tag: tagGDALNoData, ftype: typeASCII, count: uint32(len(noData)), data: noData},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// layout: header | IFD | external values | strip
	ifdOffset := uint32(8)
	ifdSize := uint32(2 + len(entries)*12 + 4)
	cursor := ifdOffset + ifdSize
	for i := range entries {
		if entries[i].data != nil {
			entries[i].value = cursor
			cursor += uint32(len(entries[i].data))
			if cursor%2 == 1 {
				cursor++ // TIFF values start on even offsets
			}
		}
	}
	stripOffset := cursor
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].value = stripOffset
		}
	}

	// header
	if _, err := w.Write([]byte{'I', 'I', 42, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, le, ifdOffset); err != nil {
		return err
	}

	// IFD
	if err := binary.Write(w, le, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, le, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, le, e.ftype); err != nil {
			return err
		}
		if err := binary.Write(w, le, e.count); err != nil {
			return err
		}
		// inline SHORT/LONG values and external offsets are both written
		// as the little-endian 4-byte value field
		if err := binary.Write(w, le, e.value); err != nil {
			return err
		}
	}
	if err := binary.Write(w, le, uint32(0)); err != nil { // no next IFD
		return err
	}

	// external values, padded to even offsets
	written := ifdOffset + ifdSize
	for _, e := range entries {
		if e.data == nil {
			continue
		}
		if _, err := w.Write(e.data); err != nil {
			return err
		}
		written += uint32(len(e.data))
		if written%2 == 1 {
			if err := w.WriteByte(0); err != nil {
				return err
			}
			written++
		}
	}

	// strip: row-major float32 samples
	buf := make([]byte, 4)
	for _, v := range g.Values {
		le.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func shortsToBytes(vs []uint16) []byte {
	out := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func doublesToBytes(vs []float64) []byte {
	out := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}
