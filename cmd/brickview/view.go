package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/brickview/internal/logger"
	"github.com/taigrr/brickview/pkg/preview"
	"github.com/taigrr/brickview/pkg/render"
	"github.com/taigrr/brickview/pkg/source"
)

const (
	zoomStep      = 1.1
	dragYaw       = 0.02 // Radians per column
	dragPitch     = 0.04 // Radians per row
	keyImpulse    = 0.06
	mouseTrackOn  = "\x1b[?1003h\x1b[?1006h" // Any-event tracking, SGR encoding
	mouseTrackOff = "\x1b[?1003l\x1b[?1006l"
)

func newViewCmd(a *app) *cobra.Command {
	var stepMode, watch bool
	cmd := &cobra.Command{
		Use:   "view [model]",
		Short: "View a model in the terminal",
		Long: "View a model in the terminal. The model is a bundled asset id\n" +
			"(see 'brickview assets'), an http(s) URL or a local file path.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(nil); err != nil {
				return err
			}
			defer logger.Sync()
			return a.view(cmd.Context(), modelArg(args), stepMode, watch)
		},
	}
	cmd.Flags().BoolVar(&stepMode, "steps", false, "Start in assembly step mode")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload a local model when it changes")
	return cmd
}

// viewer holds the interactive state of the terminal viewer.
type viewer struct {
	p *preview.Preview

	mu       sync.Mutex
	name     string
	stepMode bool
	step     int
	total    int

	dragging     bool
	lastX, lastY int
}

func (a *app) view(ctx context.Context, id string, stepMode, watch bool) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	term := uv.DefaultTerminal()
	width, height, err := term.GetSize()
	if err != nil {
		return fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	_ = term.Resize(width, height)
	fmt.Fprint(os.Stdout, mouseTrackOn)
	defer func() {
		fmt.Fprint(os.Stdout, mouseTrackOff)
		term.ExitAltScreen()
		term.ShowCursor()
		_ = term.Shutdown(context.Background())
	}()

	v := &viewer{name: id, stepMode: stepMode}
	opts := a.previewOptions()
	opts.OnStepCountChange = v.stepsChanged
	v.p = preview.New(opts)
	defer v.p.Unmount()

	surface := newTermSurface(term, width, height, v.status)
	v.p.SetStepMode(stepMode)
	v.p.SetSource(id)

	if watch {
		if src, err := source.Parse(id); err == nil && src.Kind == source.LocalFile {
			if err := source.Watch(ctx, src.Value, a.log, v.p.Reload); err != nil {
				a.log.Warn("watch failed", zap.Error(err))
			}
		} else {
			a.log.Warn("--watch needs a local file", zap.String("model", id))
		}
	}

	go v.handleEvents(ctx, cancel, term, surface)
	return v.p.Viewport().Run(ctx, surface)
}

// stepsChanged runs when a load commits. The new model starts complete.
func (v *viewer) stepsChanged(count int) {
	v.mu.Lock()
	v.total = count
	v.step = count
	v.mu.Unlock()
	v.p.SetStep(count)
}

func (v *viewer) setStep(step int) {
	v.mu.Lock()
	step = max(1, min(step, v.total))
	v.step = step
	v.mu.Unlock()
	v.p.SetStep(step)
}

func (v *viewer) toggleStepMode() {
	v.mu.Lock()
	v.stepMode = !v.stepMode
	on := v.stepMode
	v.mu.Unlock()
	v.p.SetStepMode(on)
}

func (v *viewer) status() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.name
	switch err := v.p.LastError(); {
	case err != nil:
		s += "  could not load: " + err.Error()
	case v.p.Viewport().Model() == nil:
		s += "  loading..."
	case v.stepMode:
		s += fmt.Sprintf("  step %d/%d", v.step, v.total)
	default:
		s += fmt.Sprintf("  %d steps", v.total)
	}
	return s + fmt.Sprintf("  zoom %.1fx", v.p.Viewport().Zoom().Value())
}

func (v *viewer) handleEvents(ctx context.Context, cancel context.CancelFunc, term *uv.Terminal, s *termSurface) {
	view := v.p.Viewport()
	for {
		var ev uv.Event
		select {
		case <-ctx.Done():
			return
		case ev = <-term.Events():
		}

		switch ev := ev.(type) {
		case uv.WindowSizeEvent:
			s.resize(ev.Width, ev.Height)

		case uv.KeyPressEvent:
			switch {
			case ev.MatchString("esc", "q", "ctrl+c"):
				cancel()
				return
			case ev.MatchString("w", "up"):
				view.Drag(0, keyImpulse)
			case ev.MatchString("s", "down"):
				view.Drag(0, -keyImpulse)
			case ev.MatchString("a"):
				view.Drag(-keyImpulse, 0)
			case ev.MatchString("d"):
				view.Drag(keyImpulse, 0)
			case ev.MatchString("+", "="):
				view.Zoom().Apply(zoomStep)
			case ev.MatchString("-", "_"):
				view.Zoom().Apply(1 / zoomStep)
			case ev.MatchString("t"):
				v.toggleStepMode()
			case ev.MatchString("n", "right"):
				v.setStep(v.currentStep() + 1)
			case ev.MatchString("p", "left"):
				v.setStep(v.currentStep() - 1)
			case ev.MatchString("home"):
				v.setStep(1)
			case ev.MatchString("end"):
				v.setStep(v.totalSteps())
			case ev.MatchString("ctrl+r"):
				v.p.Reload()
			case ev.MatchString("r"):
				view.ResetView()
			}

		case uv.MouseClickEvent:
			if ev.Button == uv.MouseLeft {
				v.dragging, v.lastX, v.lastY = true, ev.X, ev.Y
			}
		case uv.MouseReleaseEvent:
			v.dragging = false
		case uv.MouseMotionEvent:
			if v.dragging {
				view.Drag(float64(ev.X-v.lastX)*dragYaw, float64(ev.Y-v.lastY)*dragPitch)
				v.lastX, v.lastY = ev.X, ev.Y
			}
		case uv.MouseWheelEvent:
			switch ev.Button {
			case uv.MouseWheelUp:
				view.Zoom().Apply(zoomStep)
			case uv.MouseWheelDown:
				view.Zoom().Apply(1 / zoomStep)
			}
		}
	}
}

func (v *viewer) currentStep() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.step
}

func (v *viewer) totalSteps() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// termSurface presents frames on the terminal with a status line below.
// Each cell holds two pixels stacked vertically.
type termSurface struct {
	term   *uv.Terminal
	status func() string

	mu         sync.Mutex
	cols, rows int
	resized    bool
}

func newTermSurface(term *uv.Terminal, cols, rows int, status func() string) *termSurface {
	return &termSurface{term: term, cols: cols, rows: rows, status: status}
}

func (s *termSurface) resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows, s.resized = cols, rows, true
}

// Size implements viewport.Surface.
func (s *termSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols <= 0 || s.rows < 2 {
		return 0, 0
	}
	return s.cols, (s.rows - 1) * 2
}

// Present implements viewport.Surface.
func (s *termSurface) Present(fb *render.Framebuffer) error {
	s.mu.Lock()
	if s.resized {
		s.term.Erase()
		_ = s.term.Resize(s.cols, s.rows)
		s.resized = false
	}
	s.mu.Unlock()

	s.term.Draw(&frame{fb: fb, status: s.status()})
	return s.term.Display()
}

// frame draws the framebuffer above a one-line status bar.
type frame struct {
	fb     *render.Framebuffer
	status string
}

func (f *frame) Draw(scr uv.Screen, area uv.Rectangle) {
	body := area
	body.Max.Y--
	f.fb.Draw(scr, body)
	uv.NewStyledString(f.status).Draw(scr, uv.Rect(area.Min.X, area.Max.Y-1, area.Dx(), 1))
}
