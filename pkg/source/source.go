// Package source turns model identifiers into loadable content.
//
// An identifier is one of:
//
//	https://host/model.ldr    remote URL (also accepted percent-encoded once)
//	assets/model/car.ldr      model bundled with the binary
//	file:///path/model.ldr    local file, also accepted as a bare absolute path
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind identifies where a model comes from.
type Kind int

// Source kinds.
const (
	RemoteURL Kind = iota
	BundledAsset
	LocalFile
)

func (k Kind) String() string {
	switch k {
	case RemoteURL:
		return "remote"
	case BundledAsset:
		return "asset"
	case LocalFile:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Source is a parsed model identifier.
type Source struct {
	Kind  Kind
	Value string // URL, asset path or filesystem path
}

// ContentKind identifies the form of resolved content.
type ContentKind int

// Content kinds.
const (
	URLContent ContentKind = iota
	TextContent
)

// Content is a resolved model: either a URL to fetch or the file text.
type Content struct {
	Kind ContentKind
	URL  string
	Text string
	Name string // File name used for format detection and logging
}

// UnmappedAssetError is returned for an assets/ identifier missing from
// the bundled asset table.
type UnmappedAssetError struct {
	ID string
}

func (e *UnmappedAssetError) Error() string {
	return fmt.Sprintf("unmapped asset %q", e.ID)
}

// UnknownProtocolError is returned for identifiers of no known form.
type UnknownProtocolError struct {
	ID string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown protocol in %q", e.ID)
}

var encodedURLRe = regexp.MustCompile(`(?i)^https?(:%2F%2F|%3A%2F%2F)`)

// Parse classifies id by prefix.
func Parse(id string) (Source, error) {
	id = strings.TrimSpace(id)
	if encodedURLRe.MatchString(id) {
		decoded, err := url.PathUnescape(id)
		if err != nil {
			return Source{}, fmt.Errorf("decode %q: %w", id, err)
		}
		id = decoded
	}

	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Source{Kind: RemoteURL, Value: id}, nil
	case strings.HasPrefix(id, "assets/"):
		return Source{Kind: BundledAsset, Value: id}, nil
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(id)
		if err != nil || u.Path == "" {
			return Source{}, &UnknownProtocolError{ID: id}
		}
		return Source{Kind: LocalFile, Value: u.Path}, nil
	case strings.HasPrefix(id, "/"):
		return Source{Kind: LocalFile, Value: id}, nil
	default:
		return Source{}, &UnknownProtocolError{ID: id}
	}
}

// baseName returns the last path segment of a URL or path.
func baseName(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		return s[i+1:]
	}
	return s
}
