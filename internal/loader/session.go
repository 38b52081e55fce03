// Package loader turns archive assets into the viewer's JSON model: level
// geometry with textures, lights and a compacted BSP tree, alias models,
// and textures addressed by content hash.
package loader

import (
	"log/slog"

	"github.com/quakeview/server/internal/parser"
	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/pak"
	"github.com/quakeview/server/pkg/qdata"
)

// MapDataVersion changes whenever the output format does; viewers and the
// persistent cache key on it.
const MapDataVersion = 13

// IndexPolicy selects what a face's texture index refers to.
type IndexPolicy string

const (
	// IndexAbsolute uses the level's miptex index; texturenames lists the
	// whole texture directory with "" for holes.
	IndexAbsolute IndexPolicy = "absolute"
	// IndexCompact numbers textures in first use order, followed by the
	// animation frames the used textures link to.
	IndexCompact IndexPolicy = "compact"
)

// FlagsPolicy selects how model flags are emitted.
type FlagsPolicy string

const (
	FlagsRaw        FlagsPolicy = "raw"
	FlagsAutoRotate FlagsPolicy = "autorotate"
)

// Options control output variants that viewers disagree on.
type Options struct {
	TextureIndex          IndexPolicy
	ExcludeTargetedLights bool
	ModelFlags            FlagsPolicy
	Liquid                bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		TextureIndex:          IndexAbsolute,
		ExcludeTargetedLights: true,
		ModelFlags:            FlagsRaw,
		Liquid:                true,
	}
}

// Session decodes assets from one archive. It owns the texture table the
// /texture endpoint serves from, so a hash is only known once an asset
// using it has been loaded through the same session. Methods are safe for
// concurrent use.
type Session struct {
	archive  *pak.Archive
	textures *TextureTable
	parser   *parser.Parser
	logger   *slog.Logger
	opts     Options
}

// NewSession creates a session over archive.
func NewSession(archive *pak.Archive, opts Options, logger *slog.Logger) *Session {
	if opts.TextureIndex == "" {
		opts.TextureIndex = IndexAbsolute
	}
	if opts.ModelFlags == "" {
		opts.ModelFlags = FlagsRaw
	}
	return &Session{
		archive:  archive,
		textures: NewTextureTable(),
		parser:   parser.NewParser(logger),
		logger:   logger,
		opts:     opts,
	}
}

// Archive returns the session's archive.
func (s *Session) Archive() *pak.Archive { return s.archive }

// Textures returns the session's texture table.
func (s *Session) Textures() *TextureTable { return s.textures }

// Options returns the session's options.
func (s *Session) Options() Options { return s.opts }

// LoadTexture returns a texture registered by an earlier decode.
func (s *Session) LoadTexture(hash string) (core.Texture, error) {
	return s.textures.Lookup(hash)
}

// Palette decodes gfx/palette.lmp.
func (s *Session) Palette() ([]core.Color, error) {
	rec, err := s.archive.Get("gfx/palette.lmp")
	if err != nil {
		return nil, err
	}
	data, err := rec.RawData()
	if err != nil {
		return nil, err
	}
	if len(data) < 256*3 {
		return nil, qdata.FormatErrorf("palette is %d bytes, want %d", len(data), 256*3)
	}
	out := make([]core.Color, 256)
	for i := range out {
		out[i] = core.Color{R: data[i*3], G: data[i*3+1], B: data[i*3+2], A: 255}
	}
	return out, nil
}

// DefaultLightStyles are the styles worldspawn sets up in the stock game
// code. Styles without an entry are constant "m".
func DefaultLightStyles() []string {
	styles := make([]string, 64)
	for i := range styles {
		styles[i] = "m"
	}
	copy(styles, []string{
		"m",
		"mmnmmommommnonmmonqnmmo",
		"abcdefghijklmnopqrstuvwxyzyxwvutsrqponmlkjihgfedcba",
		"mmmmmaaaaammmmmaaaaaabcdefgabcdefg",
		"mamamamamama",
		"jklmnopqrstuvwxyzyxwvutsrqponmlkj",
		"nmonqnmomnmomomno",
		"mmmaaaabcdefgmmmmaaaammmaamm",
		"mmmaaammmaaammmabcdefaaaammmmabcdefmmmaaaa",
		"aaaaaaaazzzzzzzz",
		"mmamammmmammamamaaamammma",
		"abcdefghijklmnopqrrqponmlkjihgfedcba",
	})
	styles[63] = "a"
	return styles
}

// Hello describes a level to a connecting viewer. styles is the current
// lightstyle table; nil uses DefaultLightStyles.
func (s *Session) Hello(name string, styles []string) (*core.Hello, error) {
	l, err := s.level(name)
	if err != nil {
		return nil, err
	}
	ents, err := s.entities(l)
	if err != nil {
		return nil, err
	}
	start, err := s.parser.ParseStartPosition(ents)
	if err != nil {
		return nil, err
	}
	if styles == nil {
		styles = DefaultLightStyles()
	}
	return &core.Hello{Version: MapDataVersion, Level: name, StartPos: start, LightStyles: styles}, nil
}
