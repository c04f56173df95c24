package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taigrr/brickview/internal/logger"
	"github.com/taigrr/brickview/pkg/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out  string
		step int
	)
	cmd := &cobra.Command{
		Use:   "export [model]",
		Short: "Export a model to GLB",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(os.Stderr); err != nil {
				return err
			}
			defer logger.Sync()

			id := modelArg(args)
			if out == "" {
				out = strings.TrimSuffix(filepath.Base(id), filepath.Ext(id)) + ".glb"
			}

			p, err := a.loadModel(id, step)
			if err != nil {
				return err
			}
			defer p.Unmount()

			if err := export.SaveGLB(out, p.Viewport().Model()); err != nil {
				return fmt.Errorf("export %s: %w", out, err)
			}
			a.log.Info("exported", zap.String("model", id), zap.String("file", out), zap.Int("step", step))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default <model>.glb)")
	cmd.Flags().IntVar(&step, "step", 0, "Export only the first N assembly steps")
	return cmd
}
