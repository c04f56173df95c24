// Package parts locates and fetches files from an LDraw parts library.
//
// The Mapper turns the bare filenames that LDraw models reference into
// library URLs, the Fetcher retrieves them over HTTP or from disk, and
// the Mirror serves a local library so other viewers can use it as a base.
package parts

import (
	"regexp"
	"strings"
)

var (
	subpartRe   = regexp.MustCompile(`^\d+s\d+[a-z]?\.dat$`)
	primitiveRe = regexp.MustCompile(`^\d+-\d+`)
)

// primitivePrefixes are filename prefixes of the p/ primitive folder.
var primitivePrefixes = []string{
	"stud", "stug", "rect", "box", "cyli", "disc", "edge",
	"ring", "ndis", "con", "rin", "tri",
}

// fallbackDirs are the library folders tried after the mapped location.
var fallbackDirs = []string{"parts/", "p/", "p/48/", "p/8/", "parts/s/", "models/"}

// Mapper rewrites part references to locations under Base.
type Mapper struct {
	Base string // Library root, e.g. "https://host/ldraw/"
}

// NewMapper returns a Mapper for base, adding a trailing slash if needed.
func NewMapper(base string) Mapper {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Mapper{Base: base}
}

// Networked reports whether Base is an http(s) location.
func (m Mapper) Networked() bool {
	b := strings.ToLower(m.Base)
	return strings.HasPrefix(b, "http://") || strings.HasPrefix(b, "https://")
}

// Map returns the library URL for raw. Unless Base is a network location,
// or raw is not a .dat file, raw is returned unchanged.
func (m Mapper) Map(raw string) string {
	if !m.Networked() {
		return raw
	}
	name := Filename(raw)
	switch {
	case name == "ldconfig.ldr":
		return m.Base + "LDConfig.ldr"
	case strings.HasSuffix(name, ".ldr"):
		return raw
	case !strings.HasSuffix(name, ".dat"):
		return raw
	case subpartRe.MatchString(name):
		return m.Base + "parts/s/" + name
	case isPrimitive(name):
		return m.Base + "p/" + name
	default:
		return m.Base + "parts/" + name
	}
}

// Candidates returns the locations to try for raw, best first: the mapped
// location followed by the other library folders. LDConfig.ldr is also
// looked up at the library root and models under models/. Without a Base
// only the mapped location is returned.
func (m Mapper) Candidates(raw string) []string {
	out := []string{m.Map(raw)}
	if m.Base == "" {
		return out
	}
	seen := map[string]bool{out[0]: true}
	add := func(loc string) {
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}

	name := Filename(raw)
	switch {
	case name == "ldconfig.ldr":
		add(m.Base + "LDConfig.ldr")
	case strings.HasSuffix(name, ".dat"):
		for _, dir := range fallbackDirs {
			add(m.Base + dir + name)
		}
	case strings.HasSuffix(name, ".ldr"), strings.HasSuffix(name, ".mpd"):
		add(m.Base + "models/" + name)
	}
	return out
}

// Filename returns the lowercased last path segment of raw with any query
// or fragment removed. Both '/' and '\' separate segments.
func Filename(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndexAny(raw, `/\`); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.ToLower(raw)
}

func isPrimitive(name string) bool {
	if primitiveRe.MatchString(name) {
		return true
	}
	for _, p := range primitivePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
