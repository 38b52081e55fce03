package stream

import (
	"sync"
	"time"

	"github.com/quakeview/server/internal/parser"
	"github.com/quakeview/server/pkg/qdata"
)

// StaticWorld is a Simulation built from a level's entity lump. Nothing
// moves on its own; control handlers and tests change it with SetField.
type StaticWorld struct {
	mu      sync.RWMutex
	ents    []map[string]any
	styles  []string
	elapsed time.Duration
}

// NewStaticWorld places every entity of the lump at its spawn origin and
// orientation. styles is copied.
func NewStaticWorld(ents []parser.Entity, styles []string) (*StaticWorld, error) {
	w := &StaticWorld{
		ents:   make([]map[string]any, len(ents)),
		styles: append([]string(nil), styles...),
	}
	for i, e := range ents {
		var origin qdata.Vec3
		if _, ok := e["origin"]; ok {
			v, err := e.Vec3("origin")
			if err != nil {
				return nil, err
			}
			origin = v
		}
		angles, err := parser.ParseAngles(e)
		if err != nil {
			return nil, err
		}
		frame, err := e.Int("frame", 0)
		if err != nil {
			return nil, err
		}
		w.ents[i] = map[string]any{
			"classname": e.ClassName(),
			"model":     e["model"],
			"frame":     frame,
			"effects":   0,
			"origin":    origin,
			"angles":    angles,
		}
	}
	return w, nil
}

func (w *StaticWorld) Advance(dt time.Duration) error {
	w.mu.Lock()
	w.elapsed += dt
	w.mu.Unlock()
	return nil
}

// Elapsed returns the total simulated time.
func (w *StaticWorld) Elapsed() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.elapsed
}

func (w *StaticWorld) Entities() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ents)
}

func (w *StaticWorld) Field(entity int, name string) (any, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if entity < 0 || entity >= len(w.ents) {
		return nil, qdata.LookupErrorf("entity %d of %d", entity, len(w.ents))
	}
	v, ok := w.ents[entity][name]
	if !ok {
		return nil, qdata.LookupErrorf("entity %d has no field %q", entity, name)
	}
	return v, nil
}

func (w *StaticWorld) SetField(entity int, name string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if entity < 0 || entity >= len(w.ents) {
		return qdata.LookupErrorf("entity %d of %d", entity, len(w.ents))
	}
	w.ents[entity][name] = value
	return nil
}

// SetLightstyle replaces one entry of the lightstyle table.
func (w *StaticWorld) SetLightstyle(style int, pattern string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if style < 0 || style >= NumLightStyles {
		return qdata.LookupErrorf("lightstyle %d", style)
	}
	for len(w.styles) <= style {
		w.styles = append(w.styles, "")
	}
	w.styles[style] = pattern
	return nil
}

func (w *StaticWorld) Lightstyles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.styles...)
}
