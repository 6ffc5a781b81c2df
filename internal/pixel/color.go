package pixel

import (
	"fmt"
	"strings"
)

// Color is one entry of the fixed device palette.
type Color int

const (
	// Off is the background color every cell starts with.
	Off Color = iota
	Red
	Green
	Blue
	White
)

// DefaultOn is the color a toggled cell takes unless the store is told otherwise.
const DefaultOn = Red

// RGB is the 3-channel intensity triple sent to the device.
type RGB struct {
	R, G, B uint8
}

var palette = map[Color]RGB{
	Off:   {0, 0, 0},
	Red:   {255, 0, 0},
	Green: {0, 255, 0},
	Blue:  {0, 0, 255},
	White: {255, 255, 255},
}

var names = map[Color]string{
	Off:   "off",
	Red:   "red",
	Green: "green",
	Blue:  "blue",
	White: "white",
}

// RGB returns the device intensity triple for c. Colors outside the palette
// map to Off.
func (c Color) RGB() RGB {
	return palette[c]
}

// Valid reports whether c is part of the palette.
func (c Color) Valid() bool {
	_, ok := palette[c]
	return ok
}

func (c Color) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// Hex returns the color as "#rrggbb", used by the renderers.
func (c Color) Hex() string {
	rgb := c.RGB()
	return fmt.Sprintf("#%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// ParseColor looks a palette color up by name (case-insensitive).
func ParseColor(name string) (Color, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for c, n := range names {
		if n == want {
			return c, nil
		}
	}
	return Off, fmt.Errorf("unknown color %q (want one of %s)", name, strings.Join(Names(), ", "))
}

// Names returns the palette names in palette order.
func Names() []string {
	return []string{Off.String(), Red.String(), Green.String(), Blue.String(), White.String()}
}
