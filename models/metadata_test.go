package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Metadata encodes as a single object keyed by the anomaly kind.
func TestAnomalyMetadataEncoding(t *testing.T) {
	meta := AnomalyMetadata{
		PriceCreep: &PriceCreepMeta{ZScore: 2.01, BaselineMean: 1000, BaselineStd: 100},
	}

	raw, err := json.Marshal(meta)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "price_creep")

	var decoded AnomalyMetadata
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.PriceCreep)
	assert.Nil(t, decoded.Duplicate)
	assert.Nil(t, decoded.RoundNumber)
	assert.InDelta(t, 2.01, decoded.PriceCreep.ZScore, 1e-9)
}
