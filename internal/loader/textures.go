package loader

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

// TextureEffect derives the effect tag from a texture name.
func TextureEffect(name string) string {
	switch {
	case strings.HasPrefix(name, "sky"):
		return core.EffectSky
	case strings.HasPrefix(name, "*"):
		return core.EffectWater
	}
	return ""
}

// TextureHash is the content hash a texture is served under. The effect is
// part of the key so identical pixels used as sky and as a wall stay
// separate textures.
func TextureHash(effect string, w, h int, pixels []byte) string {
	tag := "None"
	if effect != "" {
		tag = "'" + effect + "'"
	}
	sum := md5.New()
	fmt.Fprintf(sum, "%s %d %d ", tag, w, h)
	sum.Write(pixels)
	return hex.EncodeToString(sum.Sum(nil))
}

// TextureTable maps content hashes to textures. It is owned by a Session
// and shared by every decode the session runs.
type TextureTable struct {
	mu      sync.RWMutex
	entries map[string]core.Texture
}

// NewTextureTable creates an empty table.
func NewTextureTable() *TextureTable {
	return &TextureTable{entries: make(map[string]core.Texture)}
}

// Lookup returns the texture registered under hash.
func (t *TextureTable) Lookup(hash string) (core.Texture, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tex, ok := t.entries[hash]
	if !ok {
		return core.Texture{}, qdata.LookupErrorf("texture %q", hash)
	}
	return tex, nil
}

// Len returns the number of registered textures.
func (t *TextureTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Stage starts a set of registrations that become visible on Commit. A
// decode that fails drops its stage, leaving the table untouched.
func (t *TextureTable) Stage() *TextureStage {
	return &TextureStage{table: t, pending: make(map[string]core.Texture)}
}

// TextureStage holds the registrations of one decode.
type TextureStage struct {
	table   *TextureTable
	pending map[string]core.Texture
}

// Add registers pixels and returns their hash. A hash already known keeps
// its first texture.
func (s *TextureStage) Add(effect string, w, h int, pixels []byte) string {
	hash := TextureHash(effect, w, h, pixels)
	if _, ok := s.pending[hash]; ok {
		return hash
	}
	s.table.mu.RLock()
	_, known := s.table.entries[hash]
	s.table.mu.RUnlock()
	if !known {
		s.pending[hash] = core.Texture{Width: w, Height: h, Data: pixels, Effect: effect}
	}
	return hash
}

// Commit publishes the staged textures.
func (s *TextureStage) Commit() {
	if len(s.pending) == 0 {
		return
	}
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	for hash, tex := range s.pending {
		if _, ok := s.table.entries[hash]; !ok {
			s.table.entries[hash] = tex
		}
	}
	s.pending = make(map[string]core.Texture)
}

// Restore registers textures that were decoded by an earlier process, such
// as those embedded in a stored level response. It returns how many were
// new to the table.
func (t *TextureTable) Restore(textures []*core.Texture) int {
	stage := t.Stage()
	for _, tex := range textures {
		if tex != nil {
			stage.Add(tex.Effect, tex.Width, tex.Height, tex.Data)
		}
	}
	n := len(stage.pending)
	stage.Commit()
	return n
}
