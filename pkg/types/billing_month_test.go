package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-06")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2025, Month: time.June}, m)
	assert.Equal(t, "2025-06", m.String())

	for _, bad := range []string{"", "2025-13", "06-2025", "2025/06", "2025-06-01"} {
		_, err := ParseMonth(bad)
		assert.Error(t, err, bad)
	}
}

func TestMonthBoundsFollowLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start, end := Month{Year: 2025, Month: time.June}.Bounds(loc)
	assert.Equal(t, time.Date(2025, time.June, 1, 4, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.July, 1, 4, 0, 0, 0, time.UTC), end)

	// 02:00 UTC on July 1st is still June 30th in New York.
	late := time.Date(2025, time.July, 1, 2, 0, 0, 0, time.UTC)
	assert.True(t, Month{Year: 2025, Month: time.June}.Contains(late, loc))
	assert.Equal(t, "2025-07", MonthOf(late, time.UTC).String())
}

func TestMonthAddAndJSON(t *testing.T) {
	m := Month{Year: 2025, Month: time.January}
	assert.Equal(t, "2024-12", m.Add(-1).String())
	assert.Equal(t, "2026-01", m.Add(12).String())

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-01"`, string(raw))

	var decoded Month
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, m, decoded)
	assert.Error(t, json.Unmarshal([]byte(`"January"`), &decoded))
}
