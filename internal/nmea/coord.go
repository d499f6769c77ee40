package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCoord converts an NMEA ddmm.mmmm (latitude, hemisphere N/S) or
// dddmm.mmmm (longitude, hemisphere E/W) value to decimal degrees.
func ParseCoord(value, hemisphere string) (float64, error) {
	value = strings.TrimSpace(value)
	hemisphere = strings.ToUpper(strings.TrimSpace(hemisphere))

	var degDigits int
	var limit float64
	switch hemisphere {
	case "N", "S":
		degDigits, limit = 2, 90
	case "E", "W":
		degDigits, limit = 3, 180
	default:
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformed, hemisphere)
	}

	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	// the degree field may be written without leading zeros
	if dot < 2 || dot > degDigits+2 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, value)
	}
	degPart, minPart := value[:dot-2], value[dot-2:]

	deg := 0.0
	if degPart != "" {
		d, err := strconv.ParseUint(degPart, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, value)
		}
		deg = float64(d)
	}
	minutes, err := strconv.ParseFloat(minPart, 64)
	if err != nil || minutes < 0 || minutes >= 60 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, value)
	}

	dec := deg + minutes/60
	if dec > limit {
		return 0, fmt.Errorf("%w: coordinate %q out of range", ErrMalformed, value)
	}
	if hemisphere == "S" || hemisphere == "W" {
		dec = -dec
	}
	return dec, nil
}

// FormatLat renders a latitude as ddmm.mmm with the given minute decimals.
func FormatLat(lat float64, decimals int) (string, string) {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	return formatCoord(math.Abs(lat), 2, decimals), hemi
}

// FormatLon renders a longitude as dddmm.mmm with the given minute decimals.
func FormatLon(lon float64, decimals int) (string, string) {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	return formatCoord(math.Abs(lon), 3, decimals), hemi
}

func formatCoord(dec float64, degDigits, decimals int) string {
	deg := math.Floor(dec)
	scale := math.Pow(10, float64(decimals))
	minutes := math.Round((dec-deg)*60*scale) / scale
	if minutes >= 60 {
		deg++
		minutes -= 60
	}
	width := decimals + 3
	if decimals == 0 {
		width = 2
	}
	return fmt.Sprintf("%0*d%0*.*f", degDigits, int(deg), width, decimals, minutes)
}
