package pak

import (
	"path"
	"strings"
	"sync"

	"github.com/quakeview/server/pkg/qdata"
)

var (
	schemasMu sync.RWMutex
	schemas   = make(map[string]*qdata.Schema)
)

// Register associates a file extension (with the dot, e.g. ".bsp") with
// the schema used to decode entries of that type.
func Register(ext string, schema *qdata.Schema) {
	schemasMu.Lock()
	defer schemasMu.Unlock()
	schemas[strings.ToLower(ext)] = schema
}

// Guess returns the schema for name based on its extension, or
// qdata.Opaque when the extension is unknown.
func Guess(name string) *qdata.Schema {
	schemasMu.RLock()
	defer schemasMu.RUnlock()
	if s, ok := schemas[strings.ToLower(path.Ext(name))]; ok {
		return s
	}
	return qdata.Opaque
}

func init() {
	Register(".pak", Schema)
}
