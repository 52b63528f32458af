package nmea

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gga builds a checksummed sentence from the body between $ and *.
func gga(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestParseLineGGA(t *testing.T) {
	line := gga("GPGGA,123519.00,4807.03800,N,01131.00000,E,4,12,0.8,545.40,M,46.9,M,1.2,0042")

	pt, err := ParseLine("rover-1", line)
	require.NoError(t, err)

	assert.Equal(t, "rover-1", pt.ReceiverID)
	assert.InDelta(t, 48.1173, pt.Lat, 1e-4)
	assert.InDelta(t, 11.5166667, pt.Lon, 1e-4)
	assert.InDelta(t, 545.4, pt.Altitude, 1e-9)
	assert.Equal(t, 4, pt.FixQuality)
	assert.Equal(t, 12, pt.Satellites)
	assert.InDelta(t, 0.8, pt.HDOP, 1e-9)
	assert.InDelta(t, 1.2, pt.DGPSAge, 1e-9)
}

func TestParseLineSouthWest(t *testing.T) {
	line := gga("GPGGA,123519.00,3356.00000,S,15112.00000,W,1,08,1.5,12.30,M,0.0,M,,")

	pt, err := ParseLine("r", line)
	require.NoError(t, err)
	assert.InDelta(t, -33.9333333, pt.Lat, 1e-4)
	assert.InDelta(t, -151.2, pt.Lon, 1e-4)
	assert.Equal(t, 1, pt.FixQuality)
	assert.Zero(t, pt.DGPSAge)
}

func TestParseLineSkipsNonGGA(t *testing.T) {
	line := gga("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")

	_, err := ParseLine("r", line)
	assert.ErrorIs(t, err, ErrSkip)
}

func TestParseLineSkipsInvalidFix(t *testing.T) {
	// quality 0 means no fix; the position fields are untrustworthy
	line := gga("GPGGA,123519.00,4807.03800,N,01131.00000,E,0,03,9.9,545.40,M,46.9,M,,")

	_, err := ParseLine("r", line)
	assert.ErrorIs(t, err, ErrSkip)
}

func TestParseLineSkipsEmpty(t *testing.T) {
	for _, line := range []string{"", "   ", "\t\n"} {
		_, err := ParseLine("r", line)
		assert.ErrorIs(t, err, ErrSkip)
	}
}

func TestParseLineBadChecksum(t *testing.T) {
	line := "$GPGGA,123519.00,4807.03800,N,01131.00000,E,4,12,0.8,545.40,M,46.9,M,,*00"

	_, err := ParseLine("r", line)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkip, "a corrupt line is a failure, not a skip")
}

func TestParseLineGarbage(t *testing.T) {
	_, err := ParseLine("r", "not a sentence at all")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkip)
}
