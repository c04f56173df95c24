package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/taigrr/brickview/pkg/scene"
)

// Request is the input handed to a Backend.
type Request struct {
	Name     string // File name, used for format detection
	Location string // Where Data came from; empty for inline text
	Data     []byte
}

// Backend decodes a model file. Backends report through callbacks: onLoad
// with the decoded value or onError with a failure, possibly from another
// goroutine. A misbehaving backend may call either more than once, pass an
// error to onLoad, or hand over a wrapper instead of the graph itself.
type Backend interface {
	Decode(ctx context.Context, req Request, onLoad func(any), onError func(error))
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request, onLoad func(any), onError func(error))

// Decode calls f.
func (f BackendFunc) Decode(ctx context.Context, req Request, onLoad func(any), onError func(error)) {
	f(ctx, req, onLoad, onError)
}

// sceneHolder is implemented by wrappers that carry the graph in a field.
type sceneHolder interface {
	Scene() *scene.Node
}

// decoded is the settled outcome of one Decode call.
type decoded struct {
	root *scene.Node
	err  error
}

// settle runs backend and collapses its callbacks into a single outcome.
// The first callback wins; later ones are ignored, and any graph they
// carry is disposed. If ctx ends first, settle returns ctx.Err() and a
// graph delivered afterwards is disposed by the delivering callback, so
// nothing is left waiting on a backend that never settles.
func settle(ctx context.Context, backend Backend, req Request) (*scene.Node, error) {
	ch := make(chan decoded, 1)
	var (
		mu        sync.Mutex
		settled   bool
		abandoned bool
	)
	deliver := func(d decoded) {
		mu.Lock()
		if settled || abandoned {
			mu.Unlock()
			scene.Dispose(d.root)
			return
		}
		settled = true
		ch <- d
		mu.Unlock()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				deliver(decoded{err: fmt.Errorf("backend panicked: %v", r)})
			}
		}()
		backend.Decode(ctx, req,
			func(v any) { deliver(interpret(v)) },
			func(err error) {
				if err == nil {
					err = fmt.Errorf("backend reported a nil error")
				}
				deliver(decoded{err: err})
			},
		)
	}()

	select {
	case d := <-ch:
		return d.root, d.err
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		var raced *scene.Node
		select {
		case d := <-ch:
			raced = d.root
		default:
		}
		mu.Unlock()
		scene.Dispose(raced)
		return nil, ctx.Err()
	}
}

// interpret checks a value passed to onLoad.
func interpret(v any) decoded {
	switch x := v.(type) {
	case error:
		return decoded{err: &InvalidParseResultError{Reason: "backend returned an error value as its result", Err: x}}
	case *scene.Node:
		if x == nil {
			return decoded{err: &InvalidParseResultError{Reason: "nil scene"}}
		}
		return decoded{root: x}
	case sceneHolder:
		root := x.Scene()
		if root == nil {
			return decoded{err: &InvalidParseResultError{Reason: fmt.Sprintf("%T holds no scene", v)}}
		}
		return decoded{root: root}
	case nil:
		return decoded{err: &InvalidParseResultError{Reason: "empty result"}}
	default:
		return decoded{err: &InvalidParseResultError{Reason: fmt.Sprintf("%T is not a scene graph", v)}}
	}
}
