package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds is a geographic bounding box in WGS84 degrees.
// The string form "minLng,minLat,maxLng,maxLat" matches the view-port
// parameter used across the API and the KV snapshots.
type Bounds struct {
	MinLng float64
	MinLat float64
	MaxLng float64
	MaxLat float64
}

// ParseBounds parses the "minLng,minLat,maxLng,maxLat" form.
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bounds must have four values, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("invalid bounds value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := Bounds{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
	if b.MinLng > b.MaxLng || b.MinLat > b.MaxLat {
		return Bounds{}, fmt.Errorf("bounds are inverted: %q", s)
	}
	return b, nil
}

// String renders the bounds in the "minLng,minLat,maxLng,maxLat" form.
func (b Bounds) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}

// Extend grows the bounds to include the given point.
func (b Bounds) Extend(p LatLngPoint) Bounds {
	if b.IsZero() {
		return Bounds{MinLng: p.Lng, MinLat: p.Lat, MaxLng: p.Lng, MaxLat: p.Lat}
	}
	if p.Lng < b.MinLng {
		b.MinLng = p.Lng
	}
	if p.Lng > b.MaxLng {
		b.MaxLng = p.Lng
	}
	if p.Lat < b.MinLat {
		b.MinLat = p.Lat
	}
	if p.Lat > b.MaxLat {
		b.MaxLat = p.Lat
	}
	return b
}

// Union returns the smallest bounds covering both operands.
func (b Bounds) Union(other Bounds) Bounds {
	if b.IsZero() {
		return other
	}
	if other.IsZero() {
		return b
	}
	b = b.Extend(LatLngPoint{Lat: other.MinLat, Lng: other.MinLng})
	return b.Extend(LatLngPoint{Lat: other.MaxLat, Lng: other.MaxLng})
}

// Intersects reports whether two bounding boxes overlap.
func (b Bounds) Intersects(other Bounds) bool {
	return b.MinLng <= other.MaxLng && other.MinLng <= b.MaxLng &&
		b.MinLat <= other.MaxLat && other.MinLat <= b.MaxLat
}

// IsZero reports whether the bounds are unset.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}
