// Package coords parses the free-text coordinate field stored on cities.
package coords

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidFormat is returned when a coordinate field cannot be parsed
// into a latitude/longitude pair.
var ErrInvalidFormat = errors.New("invalid coordinate format")

// Parse accepts "lat,lon" with any whitespace around or inside the values.
func Parse(text string) (lat, lon float64, err error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if cleaned == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidFormat)
	}

	parts := strings.Split(cleaned, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q: want 2 parts, got %d", ErrInvalidFormat, text, len(parts))
	}

	lat, err = parseComponent(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: latitude: %v", ErrInvalidFormat, text, err)
	}
	lon, err = parseComponent(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: longitude: %v", ErrInvalidFormat, text, err)
	}
	return lat, lon, nil
}

func parseComponent(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %s", s)
	}
	return v, nil
}
