// Package polyline encodes coordinate sequences in Google's encoded polyline
// format (https://developers.google.com/maps/documentation/utilities/polylinealgorithm).
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultPrecision is the number of decimal places used by Google Maps.
const DefaultPrecision = 5

// ErrMalformed is returned when a polyline cannot be decoded.
var ErrMalformed = errors.New("malformed polyline")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Encode encodes points with DefaultPrecision.
func Encode(points []Point) string {
	return EncodePrecision(points, DefaultPrecision)
}

// EncodePrecision encodes points rounded to the given number of decimal places.
func EncodePrecision(points []Point, precision int) string {
	if len(points) == 0 {
		return ""
	}
	factor := math.Pow10(precision)

	var b strings.Builder
	b.Grow(len(points) * 8)

	var prevLat, prevLon int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * factor))
		lon := int64(math.Round(p.Lon * factor))
		writeDelta(&b, lat-prevLat)
		writeDelta(&b, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return b.String()
}

// writeDelta zigzag-encodes v and writes it in 5-bit groups, low bits first.
func writeDelta(b *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		b.WriteByte(byte(0x20|(u&0x1f)) + 63)
		u >>= 5
	}
	b.WriteByte(byte(u) + 63)
}

// Decode decodes a polyline encoded with DefaultPrecision.
func Decode(s string) ([]Point, error) {
	return DecodePrecision(s, DefaultPrecision)
}

// DecodePrecision decodes a polyline encoded with the given precision.
func DecodePrecision(s string, precision int) ([]Point, error) {
	if s == "" {
		return nil, nil
	}
	factor := math.Pow10(precision)

	var (
		points   []Point
		lat, lon int64
		pos      int
	)
	for pos < len(s) {
		dLat, next, err := readDelta(s, pos)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readDelta(s, next)
		if err != nil {
			return nil, err
		}
		pos = next
		lat += dLat
		lon += dLon
		points = append(points, Point{Lat: float64(lat) / factor, Lon: float64(lon) / factor})
	}
	return points, nil
}

func readDelta(s string, pos int) (int64, int, error) {
	var (
		u     uint64
		shift uint
	)
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated at byte %d", ErrMalformed, pos)
		}
		c := s[pos]
		if c < 63 || c > 126 || shift > 60 {
			return 0, pos, fmt.Errorf("%w: invalid byte %q at %d", ErrMalformed, c, pos)
		}
		pos++
		chunk := uint64(c - 63)
		u |= (chunk & 0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			break
		}
	}
	v := int64(u >> 1)
	if u&1 != 0 {
		v = ^v
	}
	return v, pos, nil
}
