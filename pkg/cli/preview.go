package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/pipeline"
	"github.com/df07/go-depthmesh/pkg/preprocess"
)

type previewFlags struct {
	outDir     string
	background string
	resolution int
	brightness int
	gamma      float64
	histogram  bool
	bins       int
}

func newPreviewCommand(a *app) *cobra.Command {
	flags := &previewFlags{}

	cmd := &cobra.Command{
		Use:   "preview [flags] IMAGE",
		Short: "Write grayscale and depth preview PNGs",
		Long: `Write the grayscale composite and the tone-adjusted depth map of an image
as PNG files named <image>_gray.png and <image>_depth.png. With --histogram a
chart of the depth distribution is written to <image>_histogram.png.

Examples:
  depthmesh preview photo.png
  depthmesh preview --bg black --gamma 0.8 --histogram --out previews/ logo.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPreview(cmd, flags, args[0])
		},
	}

	defaults := pipeline.DefaultPreviewOptions()
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVar(&flags.background, "bg", defaults.Background.String(), "Backdrop for transparent pixels: white, black")
	cmd.Flags().IntVar(&flags.resolution, "res", 0, "Depth preview resolution (0 = configured default)")
	cmd.Flags().IntVar(&flags.brightness, "brightness", defaults.Brightness, "Brightness offset on the 0..255 scale")
	cmd.Flags().Float64Var(&flags.gamma, "gamma", defaults.Gamma, "Tone curve exponent")
	cmd.Flags().BoolVar(&flags.histogram, "histogram", false, "Also write a depth histogram")
	cmd.Flags().IntVar(&flags.bins, "bins", defaults.HistogramBins, "Histogram bin count")

	return cmd
}

func (a *app) runPreview(cmd *cobra.Command, flags *previewFlags, input string) error {
	opts := pipeline.DefaultPreviewOptions()
	opts.Resolution = a.cfg.Pipeline.ClampResolution(flags.resolution)
	opts.Brightness = flags.brightness
	opts.Gamma = flags.gamma
	opts.Histogram = flags.histogram
	opts.HistogramBins = flags.bins

	var err error
	if opts.Background, err = preprocess.ParseBackground(flags.background); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	p := pipeline.New(a.cfg.PipelineSettings(), a.logger)
	result, err := p.Preview(cmd.Context(), data, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
		return core.WrapError(core.StageExport, core.ErrExportIO, err, "creating %s", flags.outDir)
	}
	base := filepath.Base(input)
	stem := filepath.Join(flags.outDir, strings.TrimSuffix(base, filepath.Ext(base)))

	files := []struct {
		suffix string
		data   []byte
	}{
		{"_gray.png", result.Grayscale},
		{"_depth.png", result.Depth},
		{"_histogram.png", result.Histogram},
	}
	var written []string
	for _, f := range files {
		if f.data == nil {
			continue
		}
		path := stem + f.suffix
		_, err := export.WriteAtomic(path, func(w io.Writer) error {
			_, err := w.Write(f.data)
			return err
		})
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}

	if a.jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"input": input, "files": written})
	}
	for _, path := range written {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), path); err != nil {
			return err
		}
	}
	return nil
}
