package loader

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/quakeview/server/internal/loader/loadertest"
	"github.com/quakeview/server/pkg/bsp"
	"github.com/quakeview/server/pkg/pak"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

var texture = loadertest.Texture

func threeFaceLevel() *bsp.Contents { return loadertest.Level() }

func newArchive(t *testing.T, levels map[string]*bsp.Contents) *pak.Archive {
	return loadertest.Archive(t, levels)
}

func newTestSession(t *testing.T, opts Options, levels map[string]*bsp.Contents) *Session {
	t.Helper()
	return NewSession(newArchive(t, levels), opts, slog.Default())
}

// validate checks v against a schema under schemas/.
func validate(t *testing.T, schema string, v any) {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", schema))
	require.NoError(t, err)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	var doc any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NoError(t, s.Validate(doc))
}
