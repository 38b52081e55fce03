package parser

import (
	"strconv"
	"strings"

	"github.com/quakeview/server/pkg/qdata"
)

// Entity is one key/value block of an entity lump.
type Entity map[string]string

// ClassName returns the entity's classname, "" when unset.
func (e Entity) ClassName() string {
	return e["classname"]
}

// Float returns a numeric key, or def when the key is absent.
func (e Entity) Float(key string, def float32) (float32, error) {
	s, ok := e[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, qdata.FormatErrorf("entity %s key %q: %v", e.ClassName(), key, err)
	}
	return float32(f), nil
}

// Int returns an integer key, or def when the key is absent.
func (e Entity) Int(key string, def int) (int, error) {
	s, ok := e[key]
	if !ok {
		return def, nil
	}
	v, err := parseIntFromFloat(s)
	if err != nil {
		return 0, qdata.FormatErrorf("entity %s key %q: %v", e.ClassName(), key, err)
	}
	return v, nil
}

// Vec3 returns a required vector key. A missing key is ErrFormat: the
// entity lump is malformed, not the caller's lookup.
func (e Entity) Vec3(key string) (qdata.Vec3, error) {
	s, ok := e[key]
	if !ok {
		return qdata.Vec3{}, qdata.FormatErrorf("entity %s has no %q", e.ClassName(), key)
	}
	return ParseVec3(s)
}

// Find returns the first entity of the given class.
func Find(ents []Entity, classname string) (Entity, error) {
	for _, e := range ents {
		if e.ClassName() == classname {
			return e, nil
		}
	}
	return nil, qdata.LookupErrorf("%q not found", classname)
}
