package source

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed assets
var bundled embed.FS

// Assets maps bundled model identifiers to files in the embedded tree.
var Assets = map[string]string{
	"assets/model/car.ldr": "assets/model/car.ldr",
}

// AssetIDs returns the bundled model identifiers in sorted order.
func AssetIDs() []string {
	ids := make([]string, 0, len(Assets))
	for id := range Assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BundledFS returns the embedded asset tree.
func BundledFS() fs.FS {
	return bundled
}
