package fares

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/shopspring/decimal"
)

// ServiceArea knows the primary county, the dead miles charged for every
// other county served, and optionally the county boundaries.
type ServiceArea struct {
	primary   string
	deadMiles map[string]decimal.Decimal
	counties  []countyShape
}

type countyShape struct {
	name  string
	bound orb.Bound
	geom  orb.Geometry
}

// NewServiceArea builds the lookup from the county → dead miles table.
func NewServiceArea(primary string, deadMiles map[string]float64) (*ServiceArea, error) {
	primary = NormalizeCounty(primary)
	if primary == "" {
		return nil, fmt.Errorf("primary county is required")
	}
	area := &ServiceArea{primary: primary, deadMiles: map[string]decimal.Decimal{}}
	for county, miles := range deadMiles {
		if miles < 0 {
			return nil, fmt.Errorf("dead miles for %s must not be negative", county)
		}
		area.deadMiles[NormalizeCounty(county)] = decimal.NewFromFloat(miles)
	}
	return area, nil
}

// LoadBoundaries reads county polygons from a GeoJSON feature collection.
// Each feature names its county in the "county" or "name" property.
func (a *ServiceArea) LoadBoundaries(data []byte) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("decode service area geojson: %w", err)
	}
	shapes := make([]countyShape, 0, len(fc.Features))
	for i, feature := range fc.Features {
		name := feature.Properties.MustString("county", feature.Properties.MustString("name", ""))
		name = NormalizeCounty(name)
		if name == "" {
			return fmt.Errorf("feature %d has no county name", i)
		}
		switch feature.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return fmt.Errorf("feature %s: unsupported geometry %s", name, feature.Geometry.GeoJSONType())
		}
		shapes = append(shapes, countyShape{name: name, bound: feature.Geometry.Bound(), geom: feature.Geometry})
	}
	a.counties = shapes
	return nil
}

// LoadBoundariesFile is LoadBoundaries over a file path.
func (a *ServiceArea) LoadBoundariesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read service area %s: %w", path, err)
	}
	return a.LoadBoundaries(data)
}

// Primary returns the primary service county.
func (a *ServiceArea) Primary() string {
	return a.primary
}

// ResolveCounty finds the county containing the coordinate.
func (a *ServiceArea) ResolveCounty(lat, lng float64) (string, bool) {
	point := orb.Point{lng, lat}
	for _, shape := range a.counties {
		if !shape.bound.Contains(point) {
			continue
		}
		switch g := shape.geom.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, point) {
				return shape.name, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, point) {
				return shape.name, true
			}
		}
	}
	return "", false
}

// DeadMiles returns the dead miles for a county. The primary county and an
// unset county carry none; an unknown county is not served.
func (a *ServiceArea) DeadMiles(county string) (decimal.Decimal, bool) {
	county = NormalizeCounty(county)
	if county == "" || county == a.primary {
		return decimal.Zero, true
	}
	miles, ok := a.deadMiles[county]
	return miles, ok
}

// Counties lists the served counties other than the primary one.
func (a *ServiceArea) Counties() []string {
	out := make([]string, 0, len(a.deadMiles))
	for county := range a.deadMiles {
		out = append(out, county)
	}
	sort.Strings(out)
	return out
}

// NormalizeCounty lowercases and strips a trailing "county".
func NormalizeCounty(county string) string {
	county = strings.ToLower(strings.TrimSpace(county))
	county = strings.TrimSuffix(county, " county")
	return strings.TrimSpace(county)
}
