package fares

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCounties = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"county": "Franklin County"},
      "geometry": {"type": "Polygon", "coordinates": [[[-83.2, 39.8], [-82.8, 39.8], [-82.8, 40.1], [-83.2, 40.1], [-83.2, 39.8]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Delaware"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[-83.2, 40.1], [-82.8, 40.1], [-82.8, 40.4], [-83.2, 40.4], [-83.2, 40.1]]]]}
    }
  ]
}`

func TestServiceAreaResolveCounty(t *testing.T) {
	area, err := NewServiceArea("franklin", map[string]float64{"delaware": 10})
	require.NoError(t, err)
	require.NoError(t, area.LoadBoundaries([]byte(testCounties)))

	county, ok := area.ResolveCounty(39.96, -83.0)
	require.True(t, ok)
	assert.Equal(t, "franklin", county)

	county, ok = area.ResolveCounty(40.3, -83.0)
	require.True(t, ok)
	assert.Equal(t, "delaware", county)

	_, ok = area.ResolveCounty(41.5, -81.7)
	assert.False(t, ok)
}

func TestServiceAreaDeadMiles(t *testing.T) {
	area, err := NewServiceArea(" Franklin ", map[string]float64{"Licking County": 12.5})
	require.NoError(t, err)

	miles, ok := area.DeadMiles("franklin")
	require.True(t, ok)
	assert.True(t, miles.IsZero())

	miles, ok = area.DeadMiles("")
	require.True(t, ok)
	assert.True(t, miles.IsZero())

	miles, ok = area.DeadMiles("LICKING")
	require.True(t, ok)
	assert.True(t, miles.Equal(decimal.RequireFromString("12.5")))

	_, ok = area.DeadMiles("cuyahoga")
	assert.False(t, ok)
	assert.Equal(t, []string{"licking"}, area.Counties())
}

func TestServiceAreaValidation(t *testing.T) {
	_, err := NewServiceArea("", nil)
	require.Error(t, err)

	_, err = NewServiceArea("franklin", map[string]float64{"delaware": -1})
	require.Error(t, err)

	area, err := NewServiceArea("franklin", nil)
	require.NoError(t, err)
	require.Error(t, area.LoadBoundaries([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`)))
}
