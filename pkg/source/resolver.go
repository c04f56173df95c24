package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Resolver resolves identifiers to content. The zero value reads bundled
// assets straight from the embedded tree.
type Resolver struct {
	// AssetDir, when set, is where bundled assets are materialized before
	// being read back, the way a packaged app unpacks its resources.
	AssetDir string
	// FS overrides the bundled asset tree.
	FS fs.FS
	// Assets overrides the bundled asset table.
	Assets map[string]string
	Log    *zap.Logger

	mu           sync.Mutex
	materialized map[string]string
}

// NewResolver returns a Resolver that materializes assets under dir.
func NewResolver(dir string, log *zap.Logger) *Resolver {
	return &Resolver{AssetDir: dir, Log: log}
}

// DefaultAssetDir is the materialization directory used by the CLI.
func DefaultAssetDir() string {
	return filepath.Join(os.TempDir(), "brickview-assets")
}

// Resolve turns id into content. Remote URLs are returned for the loader
// to fetch; assets and local files are read now. No network I/O happens
// here.
func (r *Resolver) Resolve(ctx context.Context, id string) (Content, error) {
	src, err := Parse(id)
	if err != nil {
		return Content{}, err
	}
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	switch src.Kind {
	case RemoteURL:
		return Content{Kind: URLContent, URL: src.Value, Name: baseName(src.Value)}, nil
	case BundledAsset:
		text, err := r.readAsset(src.Value)
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: TextContent, Text: text, Name: baseName(src.Value)}, nil
	case LocalFile:
		data, err := os.ReadFile(src.Value)
		if err != nil {
			return Content{}, fmt.Errorf("read %s: %w", src.Value, err)
		}
		return Content{Kind: TextContent, Text: string(data), Name: baseName(src.Value)}, nil
	default:
		return Content{}, &UnknownProtocolError{ID: id}
	}
}

func (r *Resolver) readAsset(id string) (string, error) {
	table := r.Assets
	if table == nil {
		table = Assets
	}
	name, ok := table[id]
	if !ok {
		return "", &UnmappedAssetError{ID: id}
	}
	fsys := r.FS
	if fsys == nil {
		fsys = bundled
	}

	if r.AssetDir == "" {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", fmt.Errorf("read asset %s: %w", id, err)
		}
		return string(data), nil
	}

	path, err := r.materialize(fsys, name)
	if err != nil {
		return "", fmt.Errorf("materialize asset %s: %w", id, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read asset %s: %w", id, err)
	}
	return string(data), nil
}

// materialize copies an embedded file to AssetDir once per Resolver.
func (r *Resolver) materialize(fsys fs.FS, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.materialized[name]; ok {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(r.AssetDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}

	if r.materialized == nil {
		r.materialized = make(map[string]string)
	}
	r.materialized[name] = dst
	r.logger().Debug("materialized asset", zap.String("asset", name), zap.String("path", dst))
	return dst, nil
}

func (r *Resolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
