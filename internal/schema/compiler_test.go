package schema

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Prepare(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	require.NoError(t, compiler.Prepare(ctx, AlbumCreate))
	require.NoError(t, compiler.Prepare(ctx, AlbumCreate))
	require.NoError(t, compiler.Prepare(ctx, AdvertCreate))
	assert.Equal(t, 2, compiler.cache.Len())
}

func TestCompiler_PrepareRejectsRemoteRefs(t *testing.T) {
	compiler := NewCompilerWithCache(64)

	err := compiler.Prepare(context.Background(), map[string]interface{}{
		"$ref": "https://schemas.example.com/album.json",
	})
	assert.Error(t, err)
}

func decode(t *testing.T, body string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestCompiler_ValidateAlbum(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	tests := []struct {
		name    string
		body    string
		problem string
	}{
		{"minimal", `{"title":"Summer Party"}`, ""},
		{"full", `{"title":"Summer Party","slug":"summer","description":"x","eventId":12,"published":true}`, ""},
		{"missing title", `{"published":true}`, "title"},
		{"empty title", `{"title":""}`, "/title"},
		{"wrong type", `{"title":"a","published":"yes"}`, "/published"},
		{"unknown field", `{"title":"a","cover":"x.png"}`, "cover"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compiler.Validate(ctx, AlbumCreate, decode(t, tt.body))
			if tt.problem == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Problems)
			assert.True(t, strings.Contains(strings.Join(ve.Problems, "\n"), tt.problem), ve.Problems)
		})
	}
}

func TestCompiler_ValidateAdvertLink(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	assert.NoError(t, compiler.Validate(ctx, AdvertCreate, decode(t, `{"title":"Sale","linkUrl":"https://example.org/sale"}`)))
	assert.Error(t, compiler.Validate(ctx, AdvertCreate, decode(t, `{"title":"Sale","linkUrl":"not a uri"}`)))
}

func TestCompiler_ValidateGoValues(t *testing.T) {
	compiler := NewCompilerWithCache(64)

	err := compiler.Validate(context.Background(), AlbumCreate, map[string]interface{}{
		"title":   "From Go",
		"eventId": int64(7),
	})
	assert.NoError(t, err)
}
