package geo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureAltitudes mirrors the per-feature altitude properties an operator
// submits with a flight declaration.
type FeatureAltitudes struct {
	Meters float64 `json:"meters"`
	Datum  string  `json:"datum"`
}

// VolumesFromGeoJSON converts an operator-submitted GeoJSON feature
// collection into the Volume4D list of a partial operational intent. Every
// feature must carry a polygon geometry and min_altitude / max_altitude
// properties in metres W84.
func VolumesFromGeoJSON(raw []byte, start, end time.Time) ([]Volume4D, Bounds, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, Bounds{}, fmt.Errorf("invalid GeoJSON feature collection: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, Bounds{}, fmt.Errorf("feature collection has no features")
	}

	volumes := make([]Volume4D, 0, len(fc.Features))
	var bounds Bounds
	for i, feature := range fc.Features {
		polygon, ok := feature.Geometry.(orb.Polygon)
		if !ok {
			return nil, Bounds{}, fmt.Errorf("feature %d: geometry must be a polygon, got %s", i, feature.Geometry.GeoJSONType())
		}
		if len(polygon) == 0 || len(polygon[0]) < 4 {
			return nil, Bounds{}, fmt.Errorf("feature %d: polygon outer ring is degenerate", i)
		}

		minAlt, err := featureAltitude(feature.Properties, "min_altitude")
		if err != nil {
			return nil, Bounds{}, fmt.Errorf("feature %d: %w", i, err)
		}
		maxAlt, err := featureAltitude(feature.Properties, "max_altitude")
		if err != nil {
			return nil, Bounds{}, fmt.Errorf("feature %d: %w", i, err)
		}

		// Outer ring only; holes have no meaning in an operational intent
		ring := polygon[0]
		vertices := make([]LatLngPoint, 0, len(ring)-1)
		for _, p := range ring[:len(ring)-1] {
			vertex := LatLngPoint{Lat: p.Lat(), Lng: p.Lon()}
			vertices = append(vertices, vertex)
			bounds = bounds.Extend(vertex)
		}

		volumes = append(volumes, Volume4D{
			Volume: Volume3D{
				OutlinePolygon: &Polygon{Vertices: vertices},
				AltitudeLower:  &Altitude{Value: minAlt.Meters, Reference: AltitudeReferenceW84, Units: "M"},
				AltitudeUpper:  &Altitude{Value: maxAlt.Meters, Reference: AltitudeReferenceW84, Units: "M"},
			},
			TimeStart: NewTime(start),
			TimeEnd:   NewTime(end),
		})
	}
	return volumes, bounds, nil
}

// BoundsFromGeoJSON computes the bounding box of every geometry in a feature
// collection. Unlike VolumesFromGeoJSON no altitude properties are required;
// geofence uploads use this.
func BoundsFromGeoJSON(raw []byte) (Bounds, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return Bounds{}, fmt.Errorf("invalid GeoJSON feature collection: %w", err)
	}
	if len(fc.Features) == 0 {
		return Bounds{}, fmt.Errorf("feature collection has no features")
	}

	var bounds Bounds
	for _, feature := range fc.Features {
		if feature.Geometry == nil {
			continue
		}
		box := feature.Geometry.Bound()
		bounds = bounds.Union(Bounds{
			MinLng: box.Min.Lon(), MinLat: box.Min.Lat(),
			MaxLng: box.Max.Lon(), MaxLat: box.Max.Lat(),
		})
	}
	if bounds.IsZero() {
		return Bounds{}, fmt.Errorf("feature collection has no geometry")
	}
	return bounds, nil
}

func featureAltitude(props geojson.Properties, key string) (FeatureAltitudes, error) {
	raw, ok := props[key]
	if !ok {
		return FeatureAltitudes{}, fmt.Errorf("missing %s property", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return FeatureAltitudes{}, fmt.Errorf("invalid %s property: %w", key, err)
	}
	var alt FeatureAltitudes
	if err := json.Unmarshal(data, &alt); err != nil {
		return FeatureAltitudes{}, fmt.Errorf("invalid %s property: %w", key, err)
	}
	return alt, nil
}
