package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackPolicies(t *testing.T) {
	withSample := &EndpointConfig{Name: "fields", Sample: `[{"id":"f-1"}]`}
	withoutSample := &EndpointConfig{Name: "fields"}
	broken := &EndpointConfig{Name: "fields", Sample: `[{"id":`}
	cause := errors.New("provider down")

	_, ok := NoFallback{}.Fallback(nil, withSample, cause)
	assert.False(t, ok)

	data, ok := SampleDataFallback{}.Fallback(nil, withSample, cause)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"f-1"}]`, string(data))

	_, ok = SampleDataFallback{}.Fallback(nil, withoutSample, cause)
	assert.False(t, ok)

	_, ok = SampleDataFallback{}.Fallback(nil, broken, cause)
	assert.False(t, ok)
}

func TestNewFallbackPolicy(t *testing.T) {
	p, err := NewFallbackPolicy("none")
	require.NoError(t, err)
	assert.IsType(t, NoFallback{}, p)

	p, err = NewFallbackPolicy("sample")
	require.NoError(t, err)
	assert.IsType(t, SampleDataFallback{}, p)

	_, err = NewFallbackPolicy("mock")
	assert.Error(t, err)
}
