package loader

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taigrr/brickview/pkg/ldraw"
	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/parts"
	"github.com/taigrr/brickview/pkg/scene"
)

// maxDepth bounds reference nesting; the official library stays far below.
const maxDepth = 64

// Limits on how far one model may expand. Sub-models referenced
// repeatedly at every level multiply otherwise.
const (
	maxPlacements = 1 << 17
	maxPrimitives = 1 << 22
)

// build is the LDraw backend for a single load. It fetches every file the
// model references, then assembles the scene graph: one node per
// placement, with part geometry merged into one mesh per colour.
type build struct {
	loader  *Loader
	log     *zap.Logger
	colours ldraw.ColourTable

	files     map[string]*fileEntry
	materials map[bucketKey]*scene.Material
	parts     map[partKey][]partMesh

	// Files on the current reference path and expansion counts. Only the
	// assembling goroutine touches them.
	active     map[*ldraw.File]bool
	placed     int
	primitives int

	mu       sync.Mutex
	warnings []error
}

type fileEntry struct {
	doc      *ldraw.Document
	location string
}

type partKey struct {
	name   string
	colour ldraw.Colour
}

type partMesh struct {
	name     string
	geometry *scene.Geometry
	material *scene.Material
}

// bucketKey groups primitives that share a material.
type bucketKey struct {
	kind   scene.GeometryKind
	colour ldraw.Colour
	edge   bool // Use the edge colour of colour
}

type bucket struct {
	positions []math3d.Vec3
	controls  []math3d.Vec3
}

func newBuild(l *Loader, log *zap.Logger) *build {
	return &build{
		loader:    l,
		log:       log,
		colours:   l.colourSnapshot(),
		files:     make(map[string]*fileEntry),
		materials: make(map[bucketKey]*scene.Material),
		parts:     make(map[partKey][]partMesh),
		active:    make(map[*ldraw.File]bool),
	}
}

// Warnings returns the non-fatal problems seen so far.
func (b *build) Warnings() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.warnings...)
}

func (b *build) warn(err error) {
	b.mu.Lock()
	b.warnings = append(b.warnings, err)
	b.mu.Unlock()
}

// Decode implements Backend.
func (b *build) Decode(ctx context.Context, req Request, onLoad func(any), onError func(error)) {
	if len(bytes.TrimSpace(bytes.TrimPrefix(req.Data, utf8BOM))) == 0 {
		onError(&InvalidParseResultError{Reason: req.Name + " is empty"})
		return
	}
	doc, err := ldraw.ParseBytes(req.Name, req.Data)
	if err != nil {
		onError(&InvalidParseResultError{Reason: "parse " + req.Name, Err: err})
		return
	}
	for _, w := range doc.Warnings() {
		b.log.Debug("skipped line", zap.Error(w))
		b.warn(w)
	}

	if err := b.fetchAll(ctx, doc, req.Location); err != nil {
		onError(err)
		return
	}
	root, err := b.assemble(ctx, doc)
	if err != nil {
		onError(err)
		return
	}
	onLoad(root)
}

var utf8BOM = []byte("\xef\xbb\xbf")

type pending struct {
	name      string // As referenced
	parentLoc string // Location of the referencing file
}

// fetchAll fetches every referenced file not embedded in the document,
// one nesting level at a time. Only cancellation is an error; missing
// files become warnings.
func (b *build) fetchAll(ctx context.Context, root *ldraw.Document, rootLoc string) error {
	queued := make(map[string]bool)
	level := b.collect(root, root, rootLoc, queued)
	fetched, nextMark := 0, 25

	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.loader.concurrency)
		results := make([]*fileEntry, len(level))
		for i, p := range level {
			g.Go(func() error {
				results[i] = b.fetchFile(gctx, p)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []pending
		for i, p := range level {
			b.files[ldraw.NormalizeName(p.name)] = results[i]
			if results[i] != nil {
				next = append(next, b.collect(root, results[i].doc, results[i].location, queued)...)
			}
		}

		fetched += len(level)
		total := fetched + len(next)
		for pct := fetched * 100 / total; pct >= nextMark && nextMark <= 100; nextMark += 25 {
			b.log.Debug("loading progress", zap.Int("percent", nextMark), zap.Int("files", fetched))
		}
		level = next
	}
	return nil
}

// collect returns references in doc that are neither embedded nor queued.
func (b *build) collect(root, doc *ldraw.Document, loc string, queued map[string]bool) []pending {
	var out []pending
	for _, f := range doc.Files {
		for _, ref := range f.Refs {
			key := ldraw.NormalizeName(ref.Name)
			if _, ok := doc.Lookup(key); ok {
				continue
			}
			if _, ok := root.Lookup(key); ok {
				continue
			}
			if queued[key] {
				continue
			}
			queued[key] = true
			out = append(out, pending{name: ref.Name, parentLoc: loc})
		}
	}
	return out
}

// fetchFile fetches and parses one referenced file. It returns nil, after
// recording a warning, if the file is unavailable.
func (b *build) fetchFile(ctx context.Context, p pending) *fileEntry {
	locs := b.locations(p)
	if len(locs) == 0 {
		b.missing(p.name, "", fmt.Errorf("no location for %s: %w", p.name, parts.ErrNotFound))
		return nil
	}

	data, loc, err := b.loader.fetcher.FetchFirst(ctx, locs)
	if err != nil {
		if ctx.Err() == nil {
			b.missing(p.name, locs[0], err)
		}
		return nil
	}
	doc, err := ldraw.ParseBytes(parts.Filename(loc), data)
	if err != nil {
		b.missing(p.name, loc, err)
		return nil
	}
	return &fileEntry{doc: doc, location: loc}
}

func (b *build) missing(name, loc string, err error) {
	e := &SubResourceFetchError{Name: name, URL: loc, Err: err}
	b.log.Warn("sub-file unavailable", zap.String("part", name), zap.String("url", loc), zap.Error(err))
	b.warn(e)
}

// locations returns the fetchable candidates for a reference. Relative
// candidates resolve against the referencing file's location.
func (b *build) locations(p pending) []string {
	var out []string
	for _, c := range b.loader.mapper.Candidates(p.name) {
		if isAbsolute(c) {
			out = append(out, c)
			continue
		}
		if p.parentLoc == "" {
			continue
		}
		if r := resolveRelative(p.parentLoc, c); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func isAbsolute(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") ||
		strings.HasPrefix(l, "file://") || filepath.IsAbs(loc)
}

func resolveRelative(parent, ref string) string {
	if u, err := url.Parse(parent); err == nil && u.Scheme != "" && u.Scheme != "file" {
		r, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		return u.ResolveReference(r).String()
	}
	parent = strings.TrimPrefix(parent, "file://")
	return filepath.Join(filepath.Dir(parent), filepath.FromSlash(path.Clean(ref)))
}

// lookup finds the file a reference points to: embedded in the
// referencing document, embedded in the root, or fetched.
func (b *build) lookup(name string, doc, root *ldraw.Document) (*ldraw.File, *ldraw.Document) {
	if f, ok := doc.Lookup(name); ok {
		return f, doc
	}
	if f, ok := root.Lookup(name); ok {
		return f, root
	}
	if e := b.files[ldraw.NormalizeName(name)]; e != nil {
		return e.doc.Main(), e.doc
	}
	return nil, nil
}

// assemble builds the scene graph. The root's children are the main
// model's placements; a reference that could not be fetched has no node.
// On error the partial graph is disposed.
func (b *build) assemble(ctx context.Context, doc *ldraw.Document) (*scene.Node, error) {
	main := doc.Main()
	root := scene.NewNode(main.Name)
	b.active[main] = true
	err := b.addModel(ctx, root, main, doc, doc, ldraw.MainColour, 0)
	delete(b.active, main)
	if err != nil {
		scene.Dispose(root)
		return nil, err
	}
	return root, nil
}

// addModel adds a sub-model's placements and loose geometry under node.
func (b *build) addModel(ctx context.Context, node *scene.Node, f *ldraw.File, doc, root *ldraw.Document, colour ldraw.Colour, depth int) error {
	for _, ref := range f.Refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		child, err := b.placement(ctx, ref, doc, root, colour, depth+1)
		if child != nil {
			node.Add(child)
		}
		if err != nil {
			return err
		}
	}

	if len(f.Triangles) == 0 && len(f.Edges) == 0 && len(f.Optionals) == 0 {
		return nil
	}
	buckets := make(map[bucketKey]*bucket)
	if err := b.addPrimitives(f, math3d.Identity(), colour, false, buckets); err != nil {
		return err
	}
	loose := scene.NewNode(f.Name + " geometry")
	for _, m := range b.meshes(f.Name, buckets) {
		loose.Add(scene.NewMesh(m.name, m.geometry, m.material))
	}
	node.Add(loose)
	return nil
}

// placement builds the node for one type 1 line. A reference back to a
// file already on the current path is skipped with a warning. The node
// is returned even with an error so that its contents get disposed.
func (b *build) placement(ctx context.Context, ref ldraw.Ref, doc, root *ldraw.Document, parentColour ldraw.Colour, depth int) (*scene.Node, error) {
	if depth > maxDepth {
		b.warn(fmt.Errorf("%s: references nested deeper than %d", ref.Name, maxDepth))
		return nil, nil
	}
	f, fdoc := b.lookup(ref.Name, doc, root)
	if f == nil {
		return nil, nil
	}
	if b.active[f] {
		b.circular(ref.Name)
		return nil, nil
	}
	b.placed++
	if b.placed > maxPlacements {
		return nil, &InvalidParseResultError{Reason: fmt.Sprintf("model has more than %d placements", maxPlacements)}
	}

	colour := inherit(ref.Colour, parentColour)
	node := scene.NewNode(ref.Name)
	m := ref.Matrix
	node.Matrix = &m

	if !isPart(ref.Name) {
		b.active[f] = true
		err := b.addModel(ctx, node, f, fdoc, root, colour, depth)
		delete(b.active, f)
		return node, err
	}
	pms, err := b.partMeshes(ctx, f, fdoc, root, colour)
	if err != nil {
		return nil, err
	}
	for _, pm := range pms {
		node.Add(scene.NewMesh(pm.name, pm.geometry, pm.material))
	}
	return node, nil
}

func (b *build) circular(name string) {
	err := fmt.Errorf("%s: %w", name, ErrCircularReference)
	b.log.Warn("skipped circular reference", zap.String("part", name))
	b.warn(err)
}


// isPart reports whether a reference names a part rather than a model.
func isPart(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".dat")
}

func inherit(c, parent ldraw.Colour) ldraw.Colour {
	if c == ldraw.MainColour {
		return parent
	}
	return c
}

// partMeshes flattens a part and everything it references into one mesh
// per material, in the part's own space. Results are shared between
// placements of the same part in the same colour.
func (b *build) partMeshes(ctx context.Context, f *ldraw.File, doc, root *ldraw.Document, colour ldraw.Colour) ([]partMesh, error) {
	key := partKey{name: ldraw.NormalizeName(f.Name), colour: colour}
	if pm, ok := b.parts[key]; ok {
		return pm, nil
	}
	buckets := make(map[bucketKey]*bucket)
	if err := b.flatten(ctx, f, doc, root, math3d.Identity(), colour, false, buckets, 0); err != nil {
		return nil, err
	}
	pm := b.meshes(f.Name, buckets)
	b.parts[key] = pm
	return pm, nil
}

func (b *build) flatten(ctx context.Context, f *ldraw.File, doc, root *ldraw.Document, m math3d.Mat4, colour ldraw.Colour, invert bool, buckets map[bucketKey]*bucket, depth int) error {
	if depth > maxDepth {
		return nil
	}
	if err := b.addPrimitives(f, m, colour, invert, buckets); err != nil {
		return err
	}
	b.active[f] = true
	defer delete(b.active, f)
	for _, ref := range f.Refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub, subdoc := b.lookup(ref.Name, doc, root)
		if sub == nil {
			continue
		}
		if b.active[sub] {
			b.circular(ref.Name)
			continue
		}
		if err := b.flatten(ctx, sub, subdoc, root, m.Mul(ref.Matrix), inherit(ref.Colour, colour), invert != ref.Invert, buckets, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// addPrimitives transforms a file's own lines and faces into buckets.
func (b *build) addPrimitives(f *ldraw.File, m math3d.Mat4, colour ldraw.Colour, invert bool, buckets map[bucketKey]*bucket) error {
	b.primitives += len(f.Triangles) + len(f.Edges) + len(f.Optionals)
	if b.primitives > maxPrimitives {
		return &InvalidParseResultError{Reason: fmt.Sprintf("model has more than %d primitives", maxPrimitives)}
	}
	flip := invert != (m.Det3() < 0)
	get := func(k bucketKey) *bucket {
		bk, ok := buckets[k]
		if !ok {
			bk = &bucket{}
			buckets[k] = bk
		}
		return bk
	}

	for _, t := range f.Triangles {
		bk := get(keyFor(scene.GeometryTriangles, t.Colour, colour))
		p0, p1, p2 := m.MulVec3(t.P[0]), m.MulVec3(t.P[1]), m.MulVec3(t.P[2])
		if flip {
			p1, p2 = p2, p1
		}
		bk.positions = append(bk.positions, p0, p1, p2)
	}
	for _, e := range f.Edges {
		bk := get(keyFor(scene.GeometryLines, e.Colour, colour))
		bk.positions = append(bk.positions, m.MulVec3(e.P[0]), m.MulVec3(e.P[1]))
	}
	for _, o := range f.Optionals {
		bk := get(keyFor(scene.GeometryConditionalLines, o.Colour, colour))
		bk.positions = append(bk.positions, m.MulVec3(o.P[0]), m.MulVec3(o.P[1]))
		bk.controls = append(bk.controls, m.MulVec3(o.C[0]), m.MulVec3(o.C[1]))
	}
	return nil
}

func keyFor(kind scene.GeometryKind, c, current ldraw.Colour) bucketKey {
	switch c {
	case ldraw.MainColour:
		return bucketKey{kind: kind, colour: current}
	case ldraw.EdgeColour:
		return bucketKey{kind: kind, colour: current, edge: true}
	default:
		return bucketKey{kind: kind, colour: c}
	}
}

// meshes turns buckets into geometry, in a stable order.
func (b *build) meshes(name string, buckets map[bucketKey]*bucket) []partMesh {
	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		if keys[i].colour != keys[j].colour {
			return keys[i].colour < keys[j].colour
		}
		return !keys[i].edge && keys[j].edge
	})

	out := make([]partMesh, 0, len(keys))
	for _, k := range keys {
		bk := buckets[k]
		out = append(out, partMesh{
			name:     fmt.Sprintf("%s#%d/%s", name, int(k.colour), k.kind),
			geometry: scene.NewGeometry(k.kind, bk.positions, bk.controls),
			material: b.material(k),
		})
	}
	return out
}

// material returns the shared material for a bucket key.
func (b *build) material(k bucketKey) *scene.Material {
	if m, ok := b.materials[k]; ok {
		return m
	}
	def, ok := b.colours.Lookup(k.colour)
	if !ok {
		b.log.Debug("unknown colour", zap.Int("code", int(k.colour)))
		def, _ = b.colours.Lookup(ldraw.MainColour)
	}

	kind := scene.MaterialSurface
	switch k.kind {
	case scene.GeometryLines:
		kind = scene.MaterialEdge
	case scene.GeometryConditionalLines:
		kind = scene.MaterialConditionalLine
	}
	value, name := def.Value, def.Name
	if k.edge {
		value, name = def.Edge, def.Name+"_Edge"
	}

	m := scene.NewMaterial(kind, name, value, int(k.colour))
	b.materials[k] = m
	return m
}
