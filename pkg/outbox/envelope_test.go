package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeDefaultsVersion(t *testing.T) {
	id := uuid.New()
	env, err := ParseEnvelope([]byte(`{"eventId":"` + id.String() + `","data":{"month":"2025-06"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, id, env.ID())
}

func TestParseEnvelopeRejectsEmptyData(t *testing.T) {
	for _, raw := range []string{`{"version":1}`, `{"version":1,"data":null}`} {
		_, err := ParseEnvelope([]byte(raw))
		assert.ErrorIs(t, err, ErrEmptyEventData, raw)
	}
	_, err := ParseEnvelope([]byte(`{`))
	assert.Error(t, err)

	env, err := ParseEnvelope([]byte(`{"eventId":"evt-1","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, env.ID())
}
