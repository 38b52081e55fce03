package parser

import (
	"log/slog"
	"testing"

	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(slog.Default())
}

const sampleLump = `{
"classname" "worldspawn"
"wad" "gfx/base.wad"
"message" "the Slipgate Complex"
}
// player start
{
"classname" "info_player_start"
"origin" "480 -352 88"
"angle" "90"
}
{
"classname" "light"
"origin" "0 0 64"
}
{
"classname" "light_flame_large_yellow"
"origin" "16 32 48"
"light" "300.5"
"style" "5"
}
{ "classname" "light" "origin" "1 2 3" "targetname" "t1" "style" "32" }
{ "classname" "func_door" "model" "*1" }
`

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"negative", "-1", -1, false},
		{"float", "32.0", 32, false},
		{"padded", " 7 ", 7, false},
		{"fractional rejects", "10.5", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseVec3(t *testing.T) {
	v, err := ParseVec3("480 -352 88.5")
	require.NoError(t, err)
	assert.Equal(t, qdata.Vec3{480, -352, 88.5}, v)

	for _, bad := range []string{"", "1 2", "1 2 3 4", "1 x 3"} {
		_, err := ParseVec3(bad)
		assert.ErrorIs(t, err, qdata.ErrFormat, "input %q", bad)
	}
}

func TestParseEntities(t *testing.T) {
	p := newTestParser()
	ents, err := p.ParseEntities(sampleLump)
	require.NoError(t, err)
	require.Len(t, ents, 6)

	assert.Equal(t, "worldspawn", ents[0].ClassName())
	assert.Equal(t, "the Slipgate Complex", ents[0]["message"])
	assert.Equal(t, "480 -352 88", ents[1]["origin"])
	assert.Equal(t, "t1", ents[4]["targetname"])
	assert.Equal(t, "*1", ents[5]["model"])
}

func TestParseEntities_Errors(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		name string
		text string
	}{
		{"unterminated string", `{ "classname" "light }`},
		{"nested", `{ { } }`},
		{"stray close", `}`},
		{"key outside", `"classname" "light"`},
		{"missing value", `{ "classname" }`},
		{"not closed", `{ "classname" "light"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseEntities(tt.text)
			assert.ErrorIs(t, err, qdata.ErrFormat)
		})
	}
}

func TestParseEntities_Empty(t *testing.T) {
	ents, err := newTestParser().ParseEntities("\n// nothing here\n")
	require.NoError(t, err)
	assert.Empty(t, ents)

	ents, err = newTestParser().ParseEntities("{}")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "", ents[0].ClassName())
}
