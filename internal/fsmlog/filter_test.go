package fsmlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSensitiveKeys(t *testing.T) {
	ctx := map[string]any{
		"user": map[string]any{
			"id":       1,
			"password": "s",
		},
		"extra": map[string]any{
			"trace": "t",
			"stack": "s",
		},
		"keep": true,
	}
	excluded := []string{"user.password", "extra.*"}

	got := FilterSensitiveKeys(ctx, excluded)

	want := map[string]any{
		"user": map[string]any{"id": 1},
		"keep": true,
	}
	assert.Equal(t, want, got)
}

func TestFilterSensitiveKeysNoMutation(t *testing.T) {
	ctx := map[string]any{"a": map[string]any{"b": 1}}
	_ = FilterSensitiveKeys(ctx, []string{"a.b"})
	assert.Equal(t, 1, ctx["a"].(map[string]any)["b"])
}

func TestFilterSensitiveKeysEmptyExclusion(t *testing.T) {
	ctx := map[string]any{"a": 1}
	got := FilterSensitiveKeys(ctx, nil)
	assert.Equal(t, ctx, got)
}
