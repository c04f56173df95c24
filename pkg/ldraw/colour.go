package ldraw

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
)

// Colour is an LDraw colour code.
type Colour int

// Special colour codes.
const (
	MainColour Colour = 16 // Inherit the placing line's colour
	EdgeColour Colour = 24 // Edge colour of the placing line's colour
)

// IsDirect reports whether c is a direct 0x2RRGGBB colour.
func (c Colour) IsDirect() bool {
	return c>>24 == 0x2
}

// ParseColour parses a decimal code or a 0x2RRGGBB direct colour.
func ParseColour(s string) (Colour, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil || v>>24 != 0x2 {
			return 0, fmt.Errorf("bad direct colour %q", s)
		}
		return Colour(v), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad colour %q", s)
	}
	return Colour(v), nil
}

// ColourDef is one !COLOUR definition.
type ColourDef struct {
	Code  Colour
	Name  string
	Value color.RGBA
	Edge  color.RGBA
}

// ColourTable maps colour codes to definitions.
type ColourTable map[Colour]ColourDef

// Lookup returns the definition of c. Direct colours are synthesized with
// a dark edge. Unknown codes report false.
func (t ColourTable) Lookup(c Colour) (ColourDef, bool) {
	if c.IsDirect() {
		v := color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 255}
		return ColourDef{Code: c, Name: fmt.Sprintf("direct_%06x", int(c)&0xffffff), Value: v, Edge: darken(v)}, true
	}
	def, ok := t[c]
	return def, ok
}

// Merge copies every definition of o into t, replacing existing codes.
func (t ColourTable) Merge(o ColourTable) {
	for k, v := range o {
		t[k] = v
	}
}

// ParseColours reads every !COLOUR definition from an LDConfig.ldr style
// document.
func ParseColours(r io.Reader) (ColourTable, error) {
	doc, err := Parse("LDConfig.ldr", r)
	if err != nil {
		return nil, err
	}
	t := make(ColourTable)
	for _, f := range doc.Files {
		for _, def := range f.Colours {
			t[def.Code] = def
		}
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("LDConfig.ldr: no colour definitions: %w", ErrNotLDraw)
	}
	return t, nil
}

// parseColourDef parses the arguments following "0 !COLOUR".
func parseColourDef(args []string) (ColourDef, error) {
	if len(args) == 0 {
		return ColourDef{}, fmt.Errorf("!COLOUR without name")
	}
	def := ColourDef{Name: args[0]}
	haveCode, haveValue := false, false
	alpha := uint8(255)
	for i := 1; i < len(args); i++ {
		key := strings.ToUpper(args[i])
		if i+1 >= len(args) {
			break
		}
		switch key {
		case "CODE":
			c, err := strconv.Atoi(args[i+1])
			if err != nil {
				return ColourDef{}, fmt.Errorf("!COLOUR %s: bad code %q", def.Name, args[i+1])
			}
			def.Code = Colour(c)
			haveCode = true
			i++
		case "VALUE":
			v, err := parseHex(args[i+1])
			if err != nil {
				return ColourDef{}, fmt.Errorf("!COLOUR %s: %w", def.Name, err)
			}
			def.Value = v
			haveValue = true
			i++
		case "EDGE":
			// EDGE may also name a colour code; only hex values are kept.
			if v, err := parseHex(args[i+1]); err == nil {
				def.Edge = v
			}
			i++
		case "ALPHA":
			a, err := strconv.Atoi(args[i+1])
			if err == nil && a >= 0 && a <= 255 {
				alpha = uint8(a)
			}
			i++
		}
	}
	if !haveCode || !haveValue {
		return ColourDef{}, fmt.Errorf("!COLOUR %s: missing CODE or VALUE", def.Name)
	}
	def.Value.A = alpha
	if def.Edge.A == 0 {
		def.Edge = darken(def.Value)
	}
	return def, nil
}

func parseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad hex colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad hex colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func darken(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 3, G: c.G / 3, B: c.B / 3, A: 255}
}

// DefaultColours returns a small built-in palette covering the common
// solid colours, used until LDConfig.ldr has been loaded.
func DefaultColours() ColourTable {
	rgb := func(code Colour, name string, v, e uint32) ColourDef {
		return ColourDef{
			Code:  code,
			Name:  name,
			Value: color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255},
			Edge:  color.RGBA{R: uint8(e >> 16), G: uint8(e >> 8), B: uint8(e), A: 255},
		}
	}
	defs := []ColourDef{
		rgb(0, "Black", 0x1B2A34, 0x808080),
		rgb(1, "Blue", 0x1E5AA8, 0x333333),
		rgb(2, "Green", 0x00852B, 0x333333),
		rgb(4, "Red", 0xB40000, 0x333333),
		rgb(7, "Light_Grey", 0x8A928D, 0x333333),
		rgb(8, "Dark_Grey", 0x545955, 0x333333),
		rgb(14, "Yellow", 0xFAC80A, 0x333333),
		rgb(15, "White", 0xF4F4F4, 0x333333),
		rgb(MainColour, "Main_Colour", 0x7F7F7F, 0x333333),
		rgb(19, "Tan", 0xD7BA8C, 0x333333),
		rgb(EdgeColour, "Edge_Colour", 0x7F7F7F, 0x333333),
		rgb(25, "Orange", 0xD67923, 0x333333),
		rgb(28, "Dark_Tan", 0x91804F, 0x333333),
		rgb(70, "Reddish_Brown", 0x5F3109, 0x333333),
		rgb(71, "Light_Bluish_Grey", 0x969696, 0x333333),
		rgb(72, "Dark_Bluish_Grey", 0x646464, 0x333333),
	}
	t := make(ColourTable, len(defs))
	for _, d := range defs {
		t[d.Code] = d
	}
	return t
}
