package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
)

func probeOK(name string, n int) connection.ProbeResult {
	return connection.ProbeResult{Endpoint: name, Success: true, ItemCount: n}
}

func probeFailed(name string, c connection.ErrorCategory) connection.ProbeResult {
	return connection.ProbeResult{Endpoint: name, Category: &c}
}

func TestEvaluateConnection(t *testing.T) {
	tests := []struct {
		name    string
		valid   bool
		results []connection.ProbeResult
		want    connection.Status
	}{
		{"no credential", false, nil, connection.StatusDisconnected},
		{"no credential ignores successes", false, []connection.ProbeResult{probeOK("fields", 1)}, connection.StatusDisconnected},
		{"no endpoints", true, nil, connection.StatusConnected},
		{"all succeed", true, []connection.ProbeResult{probeOK("fields", 3), probeOK("farms", 0)}, connection.StatusConnected},
		{"some succeed", true, []connection.ProbeResult{probeOK("fields", 3), probeFailed("farms", connection.Transient())}, connection.StatusPartiallyConnected},
		{"none succeed", true, []connection.ProbeResult{probeFailed("fields", connection.Unauthorized()), probeFailed("farms", connection.Transient())}, connection.StatusConnectionRequired},
		{"none succeed all transient", true, []connection.ProbeResult{probeFailed("fields", connection.Transient())}, connection.StatusConnectionRequired},
		{"every endpoint transient", true, []connection.ProbeResult{probeFailed("fields", connection.Transient()), probeFailed("farms", connection.Transient()), probeFailed("files", connection.Transient())}, connection.StatusConnectionRequired},
		{"every endpoint unknown", true, []connection.ProbeResult{probeFailed("fields", connection.Unknown("boom")), probeFailed("farms", connection.Unknown("boom"))}, connection.StatusConnectionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateConnection(tt.valid, tt.results))
		})
	}
}

func TestEvaluateConnection_NeverConnectedWithoutCredential(t *testing.T) {
	inputs := [][]connection.ProbeResult{
		nil,
		{},
		{probeOK("a", 1)},
		{probeOK("a", 1), probeOK("b", 2)},
		{probeFailed("a", connection.Unauthorized())},
	}
	for _, in := range inputs {
		assert.NotEqual(t, connection.StatusConnected, EvaluateConnection(false, in))
	}
}

func TestRemediationLinks(t *testing.T) {
	results := []connection.ProbeResult{
		probeOK("fields", 3),
		probeFailed("farms", connection.RequiredCustomerAction("https://a")),
		probeFailed("files", connection.RequiredCustomerAction("https://a")),
		probeFailed("boundaries", connection.RequiredCustomerAction("https://b")),
		probeFailed("equipment", connection.InsufficientScope([]string{"eq1"})),
	}

	assert.Equal(t, []string{"https://a", "https://b"}, RemediationLinks(results))
	assert.Empty(t, RemediationLinks([]connection.ProbeResult{probeOK("fields", 1)}))
}
