package parser

import (
	"strings"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

// DefaultLight is the intensity of a light entity without a "light" key.
const DefaultLight = 200

// IsLight reports whether the entity is a light of any kind (light,
// light_flame_large_yellow, ...).
func IsLight(e Entity) bool {
	return strings.HasPrefix(e.ClassName(), "light")
}

// ParseLight converts a light entity.
func (p *Parser) ParseLight(e Entity) (core.Light, error) {
	var result core.Light

	origin, err := e.Vec3("origin")
	if err != nil {
		return result, err
	}
	result.Origin = core.MapVertex(origin)

	if result.Light, err = e.Float("light", DefaultLight); err != nil {
		return result, err
	}

	// style 0 is the constant style and is left out
	if result.Style, err = e.Int("style", 0); err != nil {
		return result, err
	}
	return result, nil
}

// ParseLights returns the static lights of a level. When excludeTargeted
// is set, lights with a targetname are skipped: they can be switched by
// triggers and are not static.
func (p *Parser) ParseLights(ents []Entity, excludeTargeted bool) ([]core.Light, error) {
	out := []core.Light{}
	skipped := 0
	for _, e := range ents {
		if !IsLight(e) {
			continue
		}
		if excludeTargeted && e["targetname"] != "" {
			skipped++
			continue
		}
		l, err := p.ParseLight(e)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	p.logger.Debug("Parsed lights", "lights", len(out), "targeted", skipped)
	return out, nil
}

// ParseStartPosition returns the info_player_start origin in viewer axes.
func (p *Parser) ParseStartPosition(ents []Entity) (core.Vec3, error) {
	e, err := Find(ents, "info_player_start")
	if err != nil {
		return core.Vec3{}, err
	}
	origin, err := e.Vec3("origin")
	if err != nil {
		return core.Vec3{}, err
	}
	return core.MapVertex(origin), nil
}

// ParseAngles reads an entity orientation. Brush entities often carry only
// "angle" (yaw); -1 and -2 mean up and down.
func ParseAngles(e Entity) (qdata.Vec3, error) {
	if _, ok := e["angles"]; ok {
		return e.Vec3("angles")
	}
	yaw, err := e.Float("angle", 0)
	if err != nil {
		return qdata.Vec3{}, err
	}
	switch yaw {
	case -1:
		return qdata.Vec3{-90, 0, 0}, nil
	case -2:
		return qdata.Vec3{90, 0, 0}, nil
	}
	return qdata.Vec3{0, yaw, 0}, nil
}
