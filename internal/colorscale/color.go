// Package colorscale maps metric values to display colors through an ordered
// list of value/color stops.
package colorscale

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rotisserie/eris"
)

// Kind tags a ColorSpec variant.
type Kind uint8

const (
	// KindRGB is an opaque RGB color.
	KindRGB Kind = iota
	// KindSentinel is the fully transparent "no data" color.
	KindSentinel
)

// sentinelCSS is how the sentinel is written for the renderer.
const sentinelCSS = "rgba(0,0,0,0)"

// ColorSpec is either an RGB triple or the transparent sentinel.
// The zero value is black.
type ColorSpec struct {
	kind    Kind
	r, g, b uint8
}

// RGB returns an opaque color.
func RGB(r, g, b uint8) ColorSpec {
	return ColorSpec{kind: KindRGB, r: r, g: g, b: b}
}

// Transparent returns the sentinel color.
func Transparent() ColorSpec {
	return ColorSpec{kind: KindSentinel}
}

// Neutral is the fallback color used when a stop color cannot be parsed.
var Neutral = RGB(0x80, 0x80, 0x80)

// Kind returns the variant tag.
func (c ColorSpec) Kind() Kind { return c.kind }

// IsSentinel reports whether c is the transparent sentinel.
func (c ColorSpec) IsSentinel() bool { return c.kind == KindSentinel }

// Channels returns the RGB channels. The sentinel reports 0, 0, 0.
func (c ColorSpec) Channels() (r, g, b uint8) { return c.r, c.g, c.b }

// Equal reports whether two colors are the same variant and channels.
func (c ColorSpec) Equal(o ColorSpec) bool {
	if c.kind != o.kind {
		return false
	}
	if c.kind == KindSentinel {
		return true
	}
	return c.r == o.r && c.g == o.g && c.b == o.b
}

// Hex returns "#rrggbb". The sentinel has no hex form and returns "".
func (c ColorSpec) Hex() string {
	if c.kind == KindSentinel {
		return ""
	}
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

// String renders the color the way the map renderer accepts it.
func (c ColorSpec) String() string {
	if c.kind == KindSentinel {
		return sentinelCSS
	}
	return c.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (c ColorSpec) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ColorSpec) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses "#rgb", "#rrggbb" or one of the sentinel spellings
// ("transparent", "none", "rgba(0,0,0,0)").
func ParseColor(s string) (ColorSpec, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch strings.ReplaceAll(norm, " ", "") {
	case "transparent", "none", sentinelCSS:
		return Transparent(), nil
	}
	if !strings.HasPrefix(norm, "#") || (len(norm) != 4 && len(norm) != 7) {
		return ColorSpec{}, eris.Wrap(&ColorFormatError{Input: s}, "colorscale: parse color")
	}
	col, err := colorful.Hex(norm)
	if err != nil {
		return ColorSpec{}, eris.Wrap(&ColorFormatError{Input: s, Err: err}, "colorscale: parse color")
	}
	r, g, b := col.RGB255()
	return RGB(r, g, b), nil
}

// MustParseColor is ParseColor for literal tables. It panics on bad input.
func MustParseColor(s string) ColorSpec {
	c, err := ParseColor(s)
	if err != nil {
		panic("MustParseColor: " + err.Error())
	}
	return c
}
