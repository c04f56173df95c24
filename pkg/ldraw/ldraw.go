// Package ldraw parses LDraw model, part and multi-part (MPD) files.
//
// The parser is tolerant: lines it cannot understand are recorded as
// warnings on the owning File and parsing continues. Only input that has no
// recognisable LDraw line at all is rejected.
package ldraw

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/taigrr/brickview/pkg/math3d"
)

// LDraw format errors.
var (
	ErrNotLDraw = errors.New("not an LDraw document")
	ErrBinary   = errors.New("binary data in LDraw document")
)

// maxLineLen bounds a single line; real files stay far below this.
const maxLineLen = 1 << 20

// LineType is the leading integer of an LDraw line.
type LineType int

// Line type constants.
const (
	LineMeta     LineType = 0 // Comment or meta command
	LineRef      LineType = 1 // Sub-file reference
	LineEdge     LineType = 2 // Edge line
	LineTriangle LineType = 3
	LineQuad     LineType = 4
	LineOptional LineType = 5 // Conditional line
)

// Document is a parsed LDraw file. A plain .ldr/.dat yields one File; an
// MPD yields one File per "0 FILE" section, the first being the main model.
type Document struct {
	Name  string
	Files []*File

	byName map[string]*File
}

// Main returns the first file of the document.
func (d *Document) Main() *File {
	if len(d.Files) == 0 {
		return nil
	}
	return d.Files[0]
}

// Lookup returns the embedded file with the given name, ignoring case and
// path separator style.
func (d *Document) Lookup(name string) (*File, bool) {
	f, ok := d.byName[NormalizeName(name)]
	return f, ok
}

// Warnings returns the warnings of every file in document order.
func (d *Document) Warnings() []Warning {
	var out []Warning
	for _, f := range d.Files {
		out = append(out, f.Warnings...)
	}
	return out
}

// File is one LDraw file or MPD section.
type File struct {
	Name      string
	Title     string // First comment line
	Author    string
	Certified bool // BFC CERTIFY seen
	Steps     int  // Number of STEP meta commands

	Refs      []Ref
	Edges     []Edge
	Triangles []Triangle // Quads are split; winding is counter-clockwise
	Optionals []Optional
	Colours   []ColourDef // !COLOUR definitions

	Warnings []Warning
}

// IsEmpty reports whether the file has no drawable or referencing lines.
func (f *File) IsEmpty() bool {
	return len(f.Refs) == 0 && len(f.Edges) == 0 && len(f.Triangles) == 0 && len(f.Optionals) == 0
}

// Ref is a type 1 line: a placement of another file.
type Ref struct {
	Colour Colour
	Matrix math3d.Mat4
	Name   string // Referenced file name as written, '\' replaced by '/'
	Invert bool   // Preceded by BFC INVERTNEXT
	Step   int    // Zero-based STEP index the reference appears in
}

// Edge is a type 2 line.
type Edge struct {
	Colour Colour
	P      [2]math3d.Vec3
}

// Triangle is a type 3 line or half of a type 4 line.
type Triangle struct {
	Colour Colour
	P      [3]math3d.Vec3
}

// Optional is a type 5 conditional line: P is drawn only when C[0] and
// C[1] project to the same side of it.
type Optional struct {
	Colour Colour
	P      [2]math3d.Vec3
	C      [2]math3d.Vec3
}

// Warning describes a line the parser skipped.
type Warning struct {
	File   string
	Line   int
	Reason string
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Reason)
}

// NormalizeName lowercases a reference name and converts '\' separators.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
}

// Parse reads an LDraw document. name is used for the main file when the
// document has no MPD "0 FILE" header.
func Parse(name string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return ParseBytes(name, data)
}

// ParseBytes parses an LDraw document held in memory.
func ParseBytes(name string, data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrBinary)
	}

	p := &parser{
		doc: &Document{Name: name, byName: make(map[string]*File)},
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	for sc.Scan() {
		p.lineNo++
		p.parseLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	if p.recognized == 0 && p.malformed > 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotLDraw)
	}
	if len(p.doc.Files) == 0 {
		p.startFile(name)
	}
	return p.doc, nil
}

type parser struct {
	doc    *Document
	cur    *File
	lineNo int

	ccw        bool // Current BFC winding
	invertNext bool
	detached   bool // Between NOFILE and the next FILE
	sawContent bool // Current file has any line besides FILE

	recognized int
	malformed  int
}

func (p *parser) startFile(name string) {
	f := &File{Name: name}
	p.doc.Files = append(p.doc.Files, f)
	key := NormalizeName(name)
	if _, dup := p.doc.byName[key]; !dup {
		p.doc.byName[key] = f
	}
	p.cur = f
	p.detached = false
	p.ccw = true
	p.invertNext = false
	p.sawContent = false
}

func (p *parser) file() *File {
	if p.cur == nil {
		p.startFile(p.doc.Name)
	}
	return p.cur
}

func (p *parser) warn(reason string) {
	p.malformed++
	f := p.file()
	f.Warnings = append(f.Warnings, Warning{File: f.Name, Line: p.lineNo, Reason: reason})
}

func (p *parser) parseLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	if p.detached && !isFileHeader(fields) {
		return
	}
	lt, err := strconv.Atoi(fields[0])
	if err != nil || lt < 0 || lt > 5 {
		p.warn(fmt.Sprintf("unknown line type %q", fields[0]))
		return
	}

	if LineType(lt) == LineMeta {
		p.recognized++
		p.parseMeta(line, fields[1:])
		return
	}

	p.sawContent = true
	switch LineType(lt) {
	case LineRef:
		p.parseRef(line, fields)
	case LineEdge:
		p.parseEdge(fields)
	case LineTriangle, LineQuad:
		p.parseFace(LineType(lt), fields)
	case LineOptional:
		p.parseOptional(fields)
	}
}

func (p *parser) parseMeta(line string, args []string) {
	if len(args) == 0 {
		return
	}
	switch strings.ToUpper(args[0]) {
	case "FILE":
		if len(args) < 2 {
			p.warn("FILE without name")
			return
		}
		p.startFile(restAfter(line, 2))
		return
	case "NOFILE":
		p.cur = nil
		p.detached = true
		return
	}

	f := p.file()
	switch strings.ToUpper(args[0]) {
	case "STEP":
		f.Steps++
	case "BFC":
		p.parseBFC(args[1:])
	case "!COLOUR":
		def, err := parseColourDef(args[1:])
		if err != nil {
			p.warn(err.Error())
			return
		}
		f.Colours = append(f.Colours, def)
	case "NAME:":
	case "AUTHOR:":
		f.Author = restAfter(line, 2)
	default:
		if f.Title == "" && !p.sawContent && !strings.HasPrefix(args[0], "!") && args[0] != "//" {
			f.Title = restAfter(line, 1)
		}
	}
}

func (p *parser) parseBFC(args []string) {
	f := p.file()
	for _, a := range args {
		switch strings.ToUpper(a) {
		case "CERTIFY":
			f.Certified = true
		case "NOCERTIFY":
			f.Certified = false
		case "CW":
			p.ccw = false
		case "CCW":
			p.ccw = true
		case "INVERTNEXT":
			p.invertNext = true
		}
	}
}

func (p *parser) parseRef(line string, fields []string) {
	if len(fields) < 15 {
		p.warn("type 1 line needs 15 fields")
		return
	}
	col, err := ParseColour(fields[1])
	if err != nil {
		p.warn(err.Error())
		return
	}
	v, err := parseFloats(fields[2:14])
	if err != nil {
		p.warn(err.Error())
		return
	}
	p.recognized++
	f := p.file()
	f.Refs = append(f.Refs, Ref{
		Colour: col,
		Matrix: math3d.FromLDraw(v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8], v[9], v[10], v[11]),
		Name:   strings.ReplaceAll(restAfter(line, 14), `\`, "/"),
		Invert: p.invertNext,
		Step:   f.Steps,
	})
	p.invertNext = false
}

func (p *parser) parseEdge(fields []string) {
	if len(fields) < 8 {
		p.warn("type 2 line needs 8 fields")
		return
	}
	col, pts, ok := p.colourAndPoints(fields, 2)
	if !ok {
		return
	}
	f := p.file()
	f.Edges = append(f.Edges, Edge{Colour: col, P: [2]math3d.Vec3{pts[0], pts[1]}})
}

func (p *parser) parseFace(lt LineType, fields []string) {
	n := 3
	if lt == LineQuad {
		n = 4
	}
	if len(fields) < 2+n*3 {
		p.warn(fmt.Sprintf("type %d line needs %d fields", lt, 2+n*3))
		return
	}
	col, pts, ok := p.colourAndPoints(fields, n)
	if !ok {
		return
	}
	if !p.ccw {
		// Store everything counter-clockwise.
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	f := p.file()
	f.Triangles = append(f.Triangles, Triangle{Colour: col, P: [3]math3d.Vec3{pts[0], pts[1], pts[2]}})
	if n == 4 {
		f.Triangles = append(f.Triangles, Triangle{Colour: col, P: [3]math3d.Vec3{pts[0], pts[2], pts[3]}})
	}
}

func (p *parser) parseOptional(fields []string) {
	if len(fields) < 14 {
		p.warn("type 5 line needs 14 fields")
		return
	}
	col, pts, ok := p.colourAndPoints(fields, 4)
	if !ok {
		return
	}
	f := p.file()
	f.Optionals = append(f.Optionals, Optional{
		Colour: col,
		P:      [2]math3d.Vec3{pts[0], pts[1]},
		C:      [2]math3d.Vec3{pts[2], pts[3]},
	})
}

func (p *parser) colourAndPoints(fields []string, n int) (Colour, []math3d.Vec3, bool) {
	col, err := ParseColour(fields[1])
	if err != nil {
		p.warn(err.Error())
		return 0, nil, false
	}
	v, err := parseFloats(fields[2 : 2+n*3])
	if err != nil {
		p.warn(err.Error())
		return 0, nil, false
	}
	pts := make([]math3d.Vec3, n)
	for i := range n {
		pts[i] = math3d.V3(v[i*3], v[i*3+1], v[i*3+2])
	}
	p.recognized++
	return col, pts, true
}

func isFileHeader(fields []string) bool {
	return len(fields) >= 2 && fields[0] == "0" && strings.EqualFold(fields[1], "FILE")
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// restAfter returns the original text following the first n
// whitespace-separated fields, preserving inner spacing.
func restAfter(line string, n int) string {
	s := line
	for range n {
		s = strings.TrimLeft(s, " \t")
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			return ""
		}
		s = s[i:]
	}
	return strings.TrimSpace(s)
}
