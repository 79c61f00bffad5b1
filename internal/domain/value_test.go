package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_PresentZeroIsNotAbsent(t *testing.T) {
	v := Present(0)

	f, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 0.0, f)
	assert.False(t, v.IsAbsent())
	assert.True(t, Absent().IsAbsent())
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"a": Present(0), "b": Absent(), "c": Present(2.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":null,"c":2.5}`, string(data))

	var decoded map[string]Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Present(0), decoded["a"])
	assert.Equal(t, Absent(), decoded["b"])
	assert.Equal(t, Present(2.5), decoded["c"])
}

func TestValue_UnmarshalRejectsText(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`"12"`), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode value")
}

func TestMeanOf(t *testing.T) {
	assert.Equal(t, Absent(), meanOf(nil))
	assert.Equal(t, Present(0), meanOf([]float64{0}))
	assert.Equal(t, Present(2), meanOf([]float64{1, 2, 3}))
}
