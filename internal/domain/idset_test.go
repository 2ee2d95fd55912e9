package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSet_AddAndUnion(t *testing.T) {
	var s IDSet // nil set is usable
	assert.True(t, s.Add("u1"))
	assert.False(t, s.Add("u1"))
	assert.True(t, s.Has("u1"))

	assert.True(t, s.Union(NewIDSet("u1", "u2")))
	assert.False(t, s.Union(NewIDSet("u2")))
	assert.Equal(t, 2, s.Len())
}

func TestIDSet_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewIDSet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data), "marshals as a sorted array")

	var s IDSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &s))
	assert.Equal(t, 2, s.Len())
}

func TestIDSet_CloneIsDetached(t *testing.T) {
	orig := NewIDSet("u1")
	clone := orig.Clone()
	clone.Add("u2")

	assert.False(t, orig.Has("u2"))
	assert.Nil(t, IDSet(nil).Clone())
}
