package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// circleSegments is the number of vertices used when a circle outline is
// converted to a polygon for containment checks and DSS submission.
const circleSegments = 32

// CircleToPolygon converts a circle outline to a polygon by walking the
// geodesic circumference. Radius is in metres.
func CircleToPolygon(c Circle) Polygon {
	center := orb.Point{c.Center.Lng, c.Center.Lat}
	vertices := make([]LatLngPoint, 0, circleSegments)
	for i := 0; i < circleSegments; i++ {
		bearing := float64(i) * 360.0 / circleSegments
		p := orbgeo.PointAtBearingAndDistance(center, bearing, c.Radius.Value)
		vertices = append(vertices, LatLngPoint{Lat: p.Lat(), Lng: p.Lon()})
	}
	return Polygon{Vertices: vertices}
}

// Footprint returns the horizontal outline of the volume as an orb polygon.
// Circle outlines are buffered to a polygon first.
func (v Volume3D) Footprint() (orb.Polygon, error) {
	outline := v.OutlinePolygon
	if outline == nil {
		if v.OutlineCircle == nil {
			return nil, fmt.Errorf("volume has neither outline_polygon nor outline_circle")
		}
		p := CircleToPolygon(*v.OutlineCircle)
		outline = &p
	}
	if len(outline.Vertices) < 3 {
		return nil, fmt.Errorf("outline polygon needs at least three vertices, got %d", len(outline.Vertices))
	}

	ring := make(orb.Ring, 0, len(outline.Vertices)+1)
	for _, vertex := range outline.Vertices {
		ring = append(ring, orb.Point{vertex.Lng, vertex.Lat})
	}
	// Close the ring
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

// ContainsPosition reports whether the 2-D position lies within the volume's
// horizontal outline.
func (v Volume3D) ContainsPosition(lat, lng float64) (bool, error) {
	footprint, err := v.Footprint()
	if err != nil {
		return false, err
	}
	return planar.PolygonContains(footprint, orb.Point{lng, lat}), nil
}

// ContainsAltitude reports whether the W84 altitude (metres) falls inside the
// volume's altitude band. Volumes without a band accept any altitude.
func (v Volume3D) ContainsAltitude(altitude float64) bool {
	if v.AltitudeLower != nil && altitude < v.AltitudeLower.Value {
		return false
	}
	if v.AltitudeUpper != nil && altitude > v.AltitudeUpper.Value {
		return false
	}
	return true
}

// BoundsOf computes the bounding box over all volume outlines.
func BoundsOf(volumes []Volume4D) (Bounds, error) {
	var b Bounds
	for _, v := range volumes {
		outline := v.Volume.OutlinePolygon
		if outline == nil {
			if v.Volume.OutlineCircle == nil {
				return Bounds{}, fmt.Errorf("volume has no outline")
			}
			p := CircleToPolygon(*v.Volume.OutlineCircle)
			outline = &p
		}
		for _, vertex := range outline.Vertices {
			b = b.Extend(vertex)
		}
	}
	if b.IsZero() {
		return Bounds{}, fmt.Errorf("no volumes to compute bounds from")
	}
	return b, nil
}
