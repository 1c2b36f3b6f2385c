// Package geo holds the 4-D volume model used by operational intents and the
// geometry helpers to evaluate telemetry positions against declared volumes.
package geo

import (
	"fmt"
	"time"
)

// TimeFormatRFC3339 is the only time format accepted in volume time windows.
const TimeFormatRFC3339 = "RFC3339"

// AltitudeReferenceW84 is the only vertical datum accepted for altitudes.
const AltitudeReferenceW84 = "W84"

// LatLngPoint is a location as a latitude / longitude pair.
type LatLngPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Radius is the radius of a circle outline.
type Radius struct {
	Value float64 `json:"value"`
	Units string  `json:"units"` // "M" (metres)
}

// Circle describes the outline_circle of a Volume3D.
type Circle struct {
	Center LatLngPoint `json:"center"`
	Radius Radius      `json:"radius"`
}

// Polygon describes the outline_polygon of a Volume3D.
// A minimum of three vertices is required.
type Polygon struct {
	Vertices []LatLngPoint `json:"vertices"`
}

// Altitude holds an altitude value against a vertical datum.
type Altitude struct {
	Value     float64 `json:"value"`
	Reference string  `json:"reference"` // "W84"
	Units     string  `json:"units"`     // "M"
}

// Time is an RFC3339 timestamp as exchanged with the DSS.
type Time struct {
	Value  string `json:"value"`
	Format string `json:"format"` // "RFC3339"
}

// NewTime builds a wire Time from a time.Time.
func NewTime(t time.Time) *Time {
	return &Time{Value: t.UTC().Format(time.RFC3339Nano), Format: TimeFormatRFC3339}
}

// Parse returns the timestamp carried by t.
func (t *Time) Parse() (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("missing time")
	}
	parsed, err := time.Parse(time.RFC3339Nano, t.Value)
	if err != nil {
		// Some peers omit fractional seconds
		parsed, err = time.Parse(time.RFC3339, t.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid RFC3339 time %q: %w", t.Value, err)
		}
	}
	return parsed, nil
}

// Volume3D is a three-dimensional airspace volume: a horizontal outline
// (polygon or circle) with an altitude band.
type Volume3D struct {
	OutlinePolygon *Polygon `json:"outline_polygon,omitempty"`
	OutlineCircle  *Circle  `json:"outline_circle,omitempty"`
	AltitudeLower  *Altitude `json:"altitude_lower,omitempty"`
	AltitudeUpper  *Altitude `json:"altitude_upper,omitempty"`
}

// Volume4D is a Volume3D bounded by a time window.
type Volume4D struct {
	Volume    Volume3D `json:"volume"`
	TimeStart *Time    `json:"time_start,omitempty"`
	TimeEnd   *Time    `json:"time_end,omitempty"`
}

// Window returns the overall [start, end] window covered by the volumes.
func Window(volumes []Volume4D) (start, end time.Time, err error) {
	for _, v := range volumes {
		if v.TimeStart != nil {
			s, perr := v.TimeStart.Parse()
			if perr != nil {
				return time.Time{}, time.Time{}, perr
			}
			if start.IsZero() || s.Before(start) {
				start = s
			}
		}
		if v.TimeEnd != nil {
			e, perr := v.TimeEnd.Parse()
			if perr != nil {
				return time.Time{}, time.Time{}, perr
			}
			if e.After(end) {
				end = e
			}
		}
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("volumes carry no time window")
	}
	return start, end, nil
}
