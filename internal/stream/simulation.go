// Package stream snapshots a running simulation and fans delta-encoded
// updates out to connected viewers.
package stream

import (
	"time"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/delta"
	"github.com/quakeview/server/pkg/qdata"
)

// Simulation is the engine the hub drives. All calls come from the tick
// goroutine except SetField, which control handlers may call.
type Simulation interface {
	// Advance runs the simulation forward by dt.
	Advance(dt time.Duration) error
	// Entities returns the number of entity slots.
	Entities() int
	// Field reads a named entity field: a number, a string or a qdata.Vec3.
	Field(entity int, name string) (any, error)
	SetField(entity int, name string, value any) error
	// Lightstyles returns the 64-entry lightstyle table.
	Lightstyles() []string
}

const (
	// MaxEntities bounds a snapshot.
	MaxEntities = 600
	// FirstDynamicStyle is the first lightstyle the game changes at run time.
	FirstDynamicStyle = 32
	// NumLightStyles is the size of the lightstyle table.
	NumLightStyles = 64
	// EntityValues is the number of snapshot values per entity.
	EntityValues = 9
)

// SnapshotLen returns the length of a snapshot with n entities.
func SnapshotLen(n int) int {
	return NumLightStyles - FirstDynamicStyle + n*EntityValues
}

// Flatten reads the simulation into the snapshot layout: lightstyles 32
// to 63, then per entity model, frame, effects, origin and angles. Vectors
// are in viewer coordinates.
func Flatten(sim Simulation) ([]delta.Value, error) {
	n := sim.Entities()
	if n > MaxEntities {
		return nil, qdata.InvariantErrorf("%d entities exceed the snapshot limit of %d", n, MaxEntities)
	}
	out := make([]delta.Value, 0, SnapshotLen(n))

	styles := sim.Lightstyles()
	for i := FirstDynamicStyle; i < NumLightStyles; i++ {
		s := ""
		if i < len(styles) {
			s = styles[i]
		}
		out = append(out, delta.Str(s))
	}

	for e := 0; e < n; e++ {
		for _, name := range []string{"model", "frame", "effects"} {
			v, err := sim.Field(e, name)
			if err != nil {
				return nil, err
			}
			dv, err := toValue(e, name, v)
			if err != nil {
				return nil, err
			}
			out = append(out, dv)
		}

		origin, err := vecField(sim, e, "origin")
		if err != nil {
			return nil, err
		}
		o := core.MapVertex(origin)
		out = append(out, delta.Num(o.X), delta.Num(o.Y), delta.Num(o.Z))

		angles, err := vecField(sim, e, "angles")
		if err != nil {
			return nil, err
		}
		out = append(out, delta.Num(angles[0]), delta.Num(angles[1]), delta.Num(angles[2]))
	}
	return out, nil
}

func vecField(sim Simulation, e int, name string) (qdata.Vec3, error) {
	v, err := sim.Field(e, name)
	if err != nil {
		return qdata.Vec3{}, err
	}
	vec, ok := v.(qdata.Vec3)
	if !ok {
		return qdata.Vec3{}, qdata.InvariantErrorf("entity %d field %q is %T, want a vector", e, name, v)
	}
	return vec, nil
}

func toValue(e int, name string, v any) (delta.Value, error) {
	switch x := v.(type) {
	case string:
		return delta.Str(x), nil
	case float32:
		return delta.Num(x), nil
	case float64:
		return delta.Num(float32(x)), nil
	case int:
		return delta.Num(float32(x)), nil
	case int32:
		return delta.Num(float32(x)), nil
	case nil:
		return delta.Num(0), nil
	}
	return delta.Value{}, qdata.InvariantErrorf("entity %d field %q has unsupported type %T", e, name, v)
}
