package main

import (
	"fmt"

	"github.com/taigrr/brickview/pkg/preview"
)

// loadModel loads id into a new preview and waits for the result. The
// caller unmounts the preview.
func (a *app) loadModel(id string, step int) (*preview.Preview, error) {
	p := preview.New(a.previewOptions())
	p.SetSource(id)
	p.Wait()
	if err := p.LastError(); err != nil {
		p.Unmount()
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	if p.Viewport().Model() == nil {
		p.Unmount()
		return nil, fmt.Errorf("load %s: no model", id)
	}
	if step > 0 {
		p.SetStepMode(true)
		p.SetStep(step)
	}
	return p, nil
}
