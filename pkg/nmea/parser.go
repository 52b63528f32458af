// Package nmea converts raw per-line positioning sentences into validated
// point records. Only GGA sentences carry a full 3D fix; everything else is
// skipped.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/kass/go-field-surface/pkg/models"
)

// ErrSkip marks a line that is valid input but carries no usable fix
// (non-GGA sentence, invalid fix quality). Callers should not count it as
// a parse failure.
var ErrSkip = errors.New("sentence skipped")

// ParseLine parses one NMEA sentence into a raw point. The receiver id is
// attached by the caller, which knows which file or device the line came
// from.
func ParseLine(receiverID, line string) (models.RawPoint, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.RawPoint{}, ErrSkip
	}

	s, err := gonmea.Parse(line)
	if err != nil {
		return models.RawPoint{}, fmt.Errorf("parse sentence: %w", err)
	}
	gga, ok := s.(gonmea.GGA)
	if !ok {
		return models.RawPoint{}, ErrSkip
	}

	quality := fixQualityCode(gga.FixQuality)
	if quality <= 0 {
		return models.RawPoint{}, ErrSkip
	}
	if gga.Latitude < -90 || gga.Latitude > 90 || gga.Longitude < -180 || gga.Longitude > 180 {
		return models.RawPoint{}, fmt.Errorf("coordinates out of range: %f, %f", gga.Latitude, gga.Longitude)
	}

	age, _ := strconv.ParseFloat(gga.DGPSAge, 64)
	return models.RawPoint{
		ReceiverID: receiverID,
		Lat:        gga.Latitude,
		Lon:        gga.Longitude,
		Altitude:   gga.Altitude,
		FixQuality: quality,
		Satellites: int(gga.NumSatellites),
		HDOP:       gga.HDOP,
		DGPSAge:    age,
	}, nil
}

func fixQualityCode(q string) int {
	n, err := strconv.Atoi(strings.TrimSpace(q))
	if err != nil {
		return 0
	}
	return n
}
