package tile

import (
	"fmt"
	"strconv"
	"strings"
)

// BandSelection is an ordered list of distinct 0-based band indices
type BandSelection []int

// String formats the selection as a comma separated list
func (s BandSelection) String() string {
	parts := make([]string, len(s))
	for i, b := range s {
		parts[i] = strconv.Itoa(b)
	}
	return strings.Join(parts, ",")
}

// AllBands selects every band of an n-band image in natural order
func AllBands(n int) BandSelection {
	sel := make(BandSelection, n)
	for i := range sel {
		sel[i] = i
	}
	return sel
}

// ParseBands parses "2,1,0" into a selection. An empty string yields nil,
// which means every band.
func ParseBands(s string) (BandSelection, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var sel BandSelection
	for _, part := range strings.Split(s, ",") {
		b, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a band index", ErrInvalidBandSelection, part)
		}
		sel = append(sel, b)
	}
	return sel, nil
}

// Policy limits the number of bands a format can store. MaxBands 0 means
// unbounded.
type Policy struct {
	MaxBands int
}

// Policies maps output formats to their band policy
type Policies map[Format]Policy

// DefaultPolicies returns the band limits of the built-in encoders
func DefaultPolicies() Policies {
	return Policies{
		FormatJPEG: {MaxBands: 3},
		FormatGIF:  {MaxBands: 3},
		FormatWEBP: {MaxBands: 3},
		FormatPNG:  {MaxBands: 4},
		FormatTIFF: {MaxBands: 4},
		FormatBMP:  {MaxBands: 4},
	}
}

// PolicyMode decides what happens when a selection exceeds a format's limit
type PolicyMode int

const (
	// PolicyAuto keeps the first MaxBands selected bands and reports an advisory
	PolicyAuto PolicyMode = iota
	// PolicyStrict rejects the selection
	PolicyStrict
)

// ParsePolicyMode accepts "auto" or "strict"
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return PolicyAuto, nil
	case "strict":
		return PolicyStrict, nil
	}
	return PolicyAuto, fmt.Errorf("unknown band policy %q (want auto or strict)", s)
}

// Advisory is a non-fatal notice that the selection was truncated to fit
// the output format
type Advisory struct {
	Format    Format        `json:"format"`
	Requested BandSelection `json:"requested"`
	Kept      BandSelection `json:"kept"`
}

func (a *Advisory) String() string {
	return fmt.Sprintf("%s supports at most %d bands; using bands %s of %s",
		a.Format, len(a.Kept), a.Kept, a.Requested)
}

// BandSelector validates band selections against a source and an output
// format
type BandSelector struct {
	Policies Policies
	Mode     PolicyMode
}

// NewBandSelector returns a selector over the default policy table
func NewBandSelector(mode PolicyMode) *BandSelector {
	return &BandSelector{Policies: DefaultPolicies(), Mode: mode}
}

// Resolve checks requested against an image with sourceBands bands and
// applies the output format's limit. A nil or empty request selects all
// bands. The returned advisory is non-nil only when bands were dropped.
func (s *BandSelector) Resolve(sourceBands int, requested []int, f Format) (BandSelection, *Advisory, error) {
	if sourceBands < 1 {
		return nil, nil, fmt.Errorf("%w: source has %d bands", ErrInvalidBandSelection, sourceBands)
	}

	var sel BandSelection
	if len(requested) == 0 {
		sel = AllBands(sourceBands)
	} else {
		seen := make(map[int]bool, len(requested))
		for _, b := range requested {
			if b < 0 || b >= sourceBands {
				return nil, nil, fmt.Errorf("%w: band %d out of range [0..%d]", ErrInvalidBandSelection, b, sourceBands-1)
			}
			if seen[b] {
				return nil, nil, fmt.Errorf("%w: band %d selected twice", ErrInvalidBandSelection, b)
			}
			seen[b] = true
		}
		sel = append(BandSelection(nil), requested...)
	}

	limit := s.Policies[f].MaxBands
	if limit == 0 || len(sel) <= limit {
		return sel, nil, nil
	}
	if s.Mode == PolicyStrict {
		return nil, nil, fmt.Errorf("%w: %d bands selected but %s stores at most %d",
			ErrInvalidBandSelection, len(sel), f, limit)
	}

	adv := &Advisory{Format: f, Requested: sel, Kept: append(BandSelection(nil), sel[:limit]...)}
	return adv.Kept, adv, nil
}
