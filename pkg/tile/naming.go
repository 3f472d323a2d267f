package tile

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPattern names tiles after the source stem and their pixel offsets
const DefaultPattern = "{base}_tile_{y}_{x}"

// tileSuffix matches the trailing "_<y>_<x>" of a tile stem
var tileSuffix = regexp.MustCompile(`_(\d+)_(\d+)$`)

type segment struct {
	literal string
	token   string
	zero    bool
	width   int
}

// Pattern is a parsed filename template. Recognised tokens are {base}, {y},
// {x}, {row}, {col}, {i} and {ext}; the numeric ones accept a format spec
// such as {y:05d}. Literal braces are written {{ and }}.
type Pattern struct {
	source   string
	segments []segment
}

// ParsePattern parses and validates a filename template
func ParsePattern(s string) (*Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	p := &Pattern{source: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.segments = append(p.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d in %q", ErrInvalidPattern, i, s)
			}
			seg, err := parseToken(s[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", ErrInvalidPattern, err, s)
			}
			flush()
			p.segments = append(p.segments, seg)
			i += end
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' at offset %d in %q", ErrInvalidPattern, i, s)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return p, nil
}

func parseToken(body string) (segment, error) {
	name, spec, hasSpec := strings.Cut(body, ":")
	seg := segment{token: name}

	switch name {
	case "y", "x", "row", "col", "i":
	case "base", "ext":
		if hasSpec {
			return seg, fmt.Errorf("token {%s} takes no format spec", name)
		}
		return seg, nil
	default:
		return seg, fmt.Errorf("unknown token {%s}", body)
	}
	if !hasSpec {
		return seg, nil
	}

	spec = strings.TrimSuffix(spec, "d")
	if strings.HasPrefix(spec, "0") {
		seg.zero = true
		spec = spec[1:]
	}
	if spec == "" {
		if !seg.zero {
			// "{i:d}" is a plain decimal
			return seg, nil
		}
		return seg, fmt.Errorf("missing width in {%s}", body)
	}
	w, err := strconv.Atoi(spec)
	if err != nil || w <= 0 || w > 32 {
		return seg, fmt.Errorf("bad format spec in {%s}", body)
	}
	seg.width = w

	return seg, nil
}

// String returns the template the pattern was parsed from
func (p *Pattern) String() string {
	return p.source
}

// Name renders the filename of box b. ext may be given with or without its
// leading dot; it is appended when the rendered name does not already end
// with it.
func (p *Pattern) Name(base, ext string, b Box, index int) (string, error) {
	ext = strings.TrimPrefix(ext, ".")

	var sb strings.Builder
	for _, seg := range p.segments {
		switch seg.token {
		case "":
			sb.WriteString(seg.literal)
		case "base":
			sb.WriteString(base)
		case "ext":
			sb.WriteString(ext)
		case "y":
			sb.WriteString(seg.format(b.Y))
		case "x":
			sb.WriteString(seg.format(b.X))
		case "row":
			sb.WriteString(seg.format(b.Row))
		case "col":
			sb.WriteString(seg.format(b.Col))
		case "i":
			sb.WriteString(seg.format(index))
		}
	}

	name := sb.String()
	if ext != "" && !strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(ext)) {
		name += "." + ext
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: rendered name %q contains a path separator", ErrInvalidPattern, name)
	}

	return name, nil
}

func (s segment) format(v int) string {
	switch {
	case s.width == 0:
		return strconv.Itoa(v)
	case s.zero:
		return fmt.Sprintf("%0*d", s.width, v)
	default:
		return fmt.Sprintf("%*d", s.width, v)
	}
}

// sampleBoxes are rendered by Mergeable. The zero box catches space
// padding, the other one digit counts a padded width would hide.
var sampleBoxes = []Box{
	{Width: 1, Height: 1},
	{Row: 3, Col: 5, Y: 7919, X: 104729, Width: 1, Height: 1},
}

// Mergeable reports whether names rendered by the pattern decode back to
// the tile offsets, i.e. the stem ends in _{y}_{x}
func (p *Pattern) Mergeable() bool {
	for i, b := range sampleBoxes {
		name, err := p.Name("base", "png", b, 11*i)
		if err != nil {
			return false
		}
		y, x, err := DecodeName(name)
		if err != nil || y != b.Y || x != b.X {
			return false
		}
	}
	return true
}

// ValidateMergeable returns ErrInvalidPattern unless the pattern is mergeable
func (p *Pattern) ValidateMergeable() error {
	if !p.Mergeable() {
		return fmt.Errorf("%w: %q must end in _{y}_{x} before the extension to be mergeable", ErrInvalidPattern, p.source)
	}
	return nil
}

// DecodeName extracts the tile offsets from a filename whose stem ends in
// _<y>_<x>. Any leading text is ignored.
func DecodeName(name string) (y, x int, err error) {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	if len(ext) < 2 {
		return 0, 0, fmt.Errorf("%w: %q has no extension", ErrUnparseableFilename, name)
	}

	m := tileSuffix.FindStringSubmatch(strings.TrimSuffix(name, ext))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q does not end in _<y>_<x>", ErrUnparseableFilename, name)
	}
	if y, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrUnparseableFilename, name, err)
	}
	if x, err = strconv.Atoi(m[2]); err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrUnparseableFilename, name, err)
	}

	return y, x, nil
}
