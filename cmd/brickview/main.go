// brickview - LDraw brick model previewer
// Preview LDraw models in your terminal, export them to GLB or PNG, and
// serve a local parts library to other viewers.
//
// Viewer controls:
//
//	Mouse drag  - Orbit around the model
//	Scroll, +/- - Zoom in/out
//	W/S, A/D    - Pitch and yaw
//	T           - Toggle assembly step mode
//	N/P, arrows - Next/previous step
//	Home/End    - First/last step
//	R           - Reset view
//	Ctrl+R      - Reload the model
//	Q/Esc       - Quit
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/brickview/internal/config"
	"github.com/taigrr/brickview/internal/logger"
	"github.com/taigrr/brickview/pkg/preview"
	"github.com/taigrr/brickview/pkg/source"
)

// app holds the global flags and what they resolve to.
type app struct {
	cfgPath   string
	logLevel  string
	logFile   string
	partsBase string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "brickview",
		Short:         "Preview LDraw brick models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "Path to config file")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.logFile, "log-file", "", "Write logs to this file")
	pf.StringVar(&a.partsBase, "parts", "", "Parts library base URL or directory")

	root.AddCommand(
		newViewCmd(a),
		newExportCmd(a),
		newSnapshotCmd(a),
		newMirrorCmd(a),
		newConfigCmd(a),
		newAssetsCmd(),
	)
	return root
}

// setup loads the config, applies flag overrides and builds the logger.
// A nil console keeps logs off the terminal.
func (a *app) setup(console io.Writer) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.partsBase != "" {
		cfg.Parts.BaseURL = a.partsBase
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Logging.LogFile = a.logFile
	}

	fileCfg := logger.FileConfig{}
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	log, err := logger.InitWithFileConfig(cfg.Logging.Level, fileCfg, console)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	return nil
}

// previewOptions returns preview options for the loaded config.
func (a *app) previewOptions() preview.Options {
	return preview.OptionsFromConfig(a.cfg, source.DefaultAssetDir(), a.log)
}

// modelArg returns the model identifier argument, defaulting to the first
// bundled model.
func modelArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return source.AssetIDs()[0]
}
