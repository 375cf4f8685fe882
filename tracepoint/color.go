package tracepoint

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"
)

// RGB is a 24-bit color.
type RGB struct{ R, G, B uint8 }

// Hex returns the color as 0xRRGGBB.
func (c RGB) Hex() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// String formats the color as "#rrggbb".
func (c RGB) String() string { return fmt.Sprintf("#%06x", c.Hex()) }

// ColorName is one of the sixteen terminal color names.
type ColorName string

const (
	Black        ColorName = "black"
	Red          ColorName = "red"
	Green        ColorName = "green"
	Yellow       ColorName = "yellow"
	Blue         ColorName = "blue"
	Magenta      ColorName = "magenta"
	Cyan         ColorName = "cyan"
	White        ColorName = "white"
	LightBlack   ColorName = "light_black"
	LightRed     ColorName = "light_red"
	LightGreen   ColorName = "light_green"
	LightYellow  ColorName = "light_yellow"
	LightBlue    ColorName = "light_blue"
	LightMagenta ColorName = "light_magenta"
	LightCyan    ColorName = "light_cyan"
	LightWhite   ColorName = "light_white"
)

// xterm default palette.
var palette = []struct {
	name ColorName
	rgb  RGB
}{
	{Black, RGB{0, 0, 0}},
	{Red, RGB{205, 0, 0}},
	{Green, RGB{0, 205, 0}},
	{Yellow, RGB{205, 205, 0}},
	{Blue, RGB{0, 0, 238}},
	{Magenta, RGB{205, 0, 205}},
	{Cyan, RGB{0, 205, 205}},
	{White, RGB{229, 229, 229}},
	{LightBlack, RGB{127, 127, 127}},
	{LightRed, RGB{255, 0, 0}},
	{LightGreen, RGB{0, 255, 0}},
	{LightYellow, RGB{255, 255, 0}},
	{LightBlue, RGB{92, 92, 255}},
	{LightMagenta, RGB{255, 0, 255}},
	{LightCyan, RGB{0, 255, 255}},
	{LightWhite, RGB{255, 255, 255}},
}

// ColorNames iterates over the sixteen named colors in palette order.
func ColorNames() iter.Seq2[ColorName, RGB] {
	return func(yield func(ColorName, RGB) bool) {
		for _, p := range palette {
			if !yield(p.name, p.rgb) {
				return
			}
		}
	}
}

// LookupColor resolves a color name. A leading ':' is ignored, matching is
// case-insensitive, and '-' may be used in place of '_'.
func LookupColor(name string) (RGB, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, ":")))
	key = strings.ReplaceAll(key, "-", "_")

	for _, p := range palette {
		if string(p.name) == key {
			return p.rgb, true
		}
	}

	return RGB{}, false
}

// ParseColor converts a color specification to [RGB]. Accepted forms:
//
//   - a color name (string or [ColorName]), see [LookupColor];
//   - an integer 0..0xFFFFFF;
//   - [RGB], [3]uint8, [3]int or a []int of length 3 with channels 0..255.
//
// Anything else fails with [ErrInvalidColor].
func ParseColor(v any) (RGB, error) {
	switch c := v.(type) {
	case RGB:
		return c, nil

	case ColorName:
		return parseColorName(string(c))

	case string:
		return parseColorName(c)

	case int:
		return parseColorInt(int64(c))

	case int32:
		return parseColorInt(int64(c))

	case int64:
		return parseColorInt(c)

	case uint:
		return parseColorUint(uint64(c))

	case uint32:
		return parseColorUint(uint64(c))

	case uint64:
		return parseColorUint(c)

	case [3]uint8:
		return RGB{c[0], c[1], c[2]}, nil

	case [3]int:
		return parseColorTuple(c[:])

	case []int:
		if len(c) != 3 {
			return RGB{}, ErrInvalidColor.With(
				slog.Int("channels", len(c)),
				slog.String("reason", "expected 3 channels"))
		}

		return parseColorTuple(c)

	default:
		return RGB{}, ErrInvalidColor.With(
			slog.String("type", fmt.Sprintf("%T", v)))
	}
}

func parseColorName(s string) (RGB, error) {
	if rgb, ok := LookupColor(s); ok {
		return rgb, nil
	}

	return RGB{}, ErrInvalidColor.With(slog.String("name", s))
}

func parseColorInt(n int64) (RGB, error) {
	if n < 0 {
		return RGB{}, ErrInvalidColor.With(slog.Int64("value", n))
	}

	return parseColorUint(uint64(n))
}

func parseColorUint(n uint64) (RGB, error) {
	if n > 0xFFFFFF {
		return RGB{}, ErrInvalidColor.With(slog.Uint64("value", n))
	}

	return RGB{uint8(n >> 16), uint8(n >> 8), uint8(n)}, nil
}

func parseColorTuple(ch []int) (RGB, error) {
	var rgb [3]uint8

	for i, v := range ch {
		if v < 0 || v > 255 {
			return RGB{}, ErrInvalidColor.With(
				slog.Int("channel", i),
				slog.Int("value", v))
		}

		rgb[i] = uint8(v)
	}

	return RGB{rgb[0], rgb[1], rgb[2]}, nil
}
