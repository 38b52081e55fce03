package parser

import (
	"testing"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLights(t *testing.T) {
	p := newTestParser()
	ents, err := p.ParseEntities(sampleLump)
	require.NoError(t, err)

	lights, err := p.ParseLights(ents, true)
	require.NoError(t, err)
	require.Len(t, lights, 2)

	assert.Equal(t, core.Light{Origin: core.Vec3{X: 0, Y: 64, Z: 0}, Light: DefaultLight}, lights[0])
	assert.Equal(t, core.Vec3{X: 16, Y: 48, Z: 32}, lights[1].Origin)
	assert.InDelta(t, 300.5, lights[1].Light, 1e-6)
	assert.Equal(t, 5, lights[1].Style)

	all, err := p.ParseLights(ents, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 32, all[2].Style)
}

func TestParseLight_Errors(t *testing.T) {
	p := newTestParser()

	_, err := p.ParseLight(Entity{"classname": "light"})
	assert.ErrorIs(t, err, qdata.ErrFormat)
	assert.NotErrorIs(t, err, qdata.ErrLookup)

	_, err = p.ParseLight(Entity{"classname": "light", "origin": "0 0 0", "light": "bright"})
	assert.ErrorIs(t, err, qdata.ErrFormat)

	_, err = p.ParseLight(Entity{"classname": "light", "origin": "0 0 0", "style": "1.5"})
	assert.ErrorIs(t, err, qdata.ErrFormat)
}

func TestParseStartPosition(t *testing.T) {
	p := newTestParser()
	ents, err := p.ParseEntities(sampleLump)
	require.NoError(t, err)

	pos, err := p.ParseStartPosition(ents)
	require.NoError(t, err)
	assert.Equal(t, core.Vec3{X: 480, Y: 88, Z: -352}, pos)

	_, err = p.ParseStartPosition(ents[:1])
	assert.ErrorIs(t, err, qdata.ErrLookup)

	_, err = p.ParseStartPosition([]Entity{{"classname": "info_player_start"}})
	assert.ErrorIs(t, err, qdata.ErrFormat)
}

func TestParseAngles(t *testing.T) {
	tests := []struct {
		name string
		ent  Entity
		want qdata.Vec3
	}{
		{"none", Entity{}, qdata.Vec3{}},
		{"yaw", Entity{"angle": "90"}, qdata.Vec3{0, 90, 0}},
		{"up", Entity{"angle": "-1"}, qdata.Vec3{-90, 0, 0}},
		{"down", Entity{"angle": "-2"}, qdata.Vec3{90, 0, 0}},
		{"angles wins", Entity{"angle": "90", "angles": "10 20 30"}, qdata.Vec3{10, 20, 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAngles(tt.ent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
