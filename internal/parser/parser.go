package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/quakeview/server/pkg/qdata"
)

// parseIntFromFloat parses a value that may be an integer ("32") or a
// float ("32.0"). Level editors write both.
func parseIntFromFloat(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int", s)
	}
	return int(f), nil
}

// ParseVec3 parses three space separated numbers, e.g. an entity origin.
func ParseVec3(s string) (qdata.Vec3, error) {
	var v qdata.Vec3
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return v, qdata.FormatErrorf("vector %q has %d components, want 3", s, len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return v, qdata.FormatErrorf("vector %q: %v", s, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// Parser turns entity lump text into entities and core values.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

type tokenizer struct {
	src  string
	pos  int
	line int
}

// next returns the next token. Quoted strings come back without quotes and
// quoted reports whether the token was quoted; ok is false at end of input.
func (t *tokenizer) next() (tok string, quoted, ok bool, err error) {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == '\n':
			t.line++
			t.pos++
		case c == ' ' || c == '\t' || c == '\r':
			t.pos++
		case strings.HasPrefix(t.src[t.pos:], "//"):
			for t.pos < len(t.src) && t.src[t.pos] != '\n' {
				t.pos++
			}
		case c == '{' || c == '}':
			t.pos++
			return string(c), false, true, nil
		case c == '"':
			end := strings.IndexByte(t.src[t.pos+1:], '"')
			if end < 0 {
				return "", false, false, qdata.FormatErrorf("unterminated string on line %d", t.line+1)
			}
			tok = t.src[t.pos+1 : t.pos+1+end]
			t.line += strings.Count(tok, "\n")
			t.pos += end + 2
			return tok, true, true, nil
		default:
			start := t.pos
			for t.pos < len(t.src) && !strings.ContainsRune(" \t\r\n{}\"", rune(t.src[t.pos])) {
				t.pos++
			}
			return t.src[start:t.pos], false, true, nil
		}
	}
	return "", false, false, nil
}

// ParseEntities parses the text of an entity lump:
//
//	{ "classname" "worldspawn" "wad" "gfx/base.wad" }
//	{ "classname" "light" "origin" "0 0 64" }
//
// Keys repeated inside one entity keep the last value.
func (p *Parser) ParseEntities(text string) ([]Entity, error) {
	t := &tokenizer{src: text}
	var out []Entity
	var cur Entity
	for {
		tok, quoted, ok, err := t.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch {
		case !quoted && tok == "{":
			if cur != nil {
				return nil, qdata.FormatErrorf("nested '{' on line %d", t.line+1)
			}
			cur = Entity{}
		case !quoted && tok == "}":
			if cur == nil {
				return nil, qdata.FormatErrorf("unexpected '}' on line %d", t.line+1)
			}
			out = append(out, cur)
			cur = nil
		default:
			if cur == nil {
				return nil, qdata.FormatErrorf("key %q outside an entity on line %d", tok, t.line+1)
			}
			val, vquoted, ok, err := t.next()
			if err != nil {
				return nil, err
			}
			if !ok || (!vquoted && (val == "{" || val == "}")) {
				return nil, qdata.FormatErrorf("key %q has no value on line %d", tok, t.line+1)
			}
			cur[tok] = val
		}
	}
	if cur != nil {
		return nil, qdata.FormatErrorf("entity not closed at end of lump")
	}

	p.logger.Debug("Parsed entity lump", "entities", len(out))
	return out, nil
}
