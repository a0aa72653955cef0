package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connectBody struct {
	Code string `json:"code" validate:"required,max=2048"`
}

type endpointRef struct {
	Provider string `json:"provider" validate:"required,slug"`
	Endpoint string `json:"endpoint" validate:"required,slug"`
}

func TestValidate(t *testing.T) {
	v := New()

	assert.Empty(t, v.Validate(connectBody{Code: "abc"}))

	errs := v.Validate(connectBody{})
	require.Len(t, errs, 1)
	assert.Equal(t, "required", errs[0].Tag)
	assert.Contains(t, errs[0].Message, "code is required")
}

func TestValidate_Slug(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		in       endpointRef
		wantErrs int
	}{
		{"valid", endpointRef{Provider: "john-deere", Endpoint: "field_boundaries"}, 0},
		{"uppercase", endpointRef{Provider: "JohnDeere", Endpoint: "fields"}, 1},
		{"path traversal", endpointRef{Provider: "deere", Endpoint: "../admin"}, 1},
		{"both missing", endpointRef{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, v.Validate(tt.in), tt.wantErrs)
		})
	}
}

func TestSummarize(t *testing.T) {
	errs := []ValidationError{{Message: "a is required"}, {Message: "b must be a valid URL"}}
	assert.Equal(t, "a is required; b must be a valid URL", Summarize(errs))
}
