package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/geometry"
	"github.com/df07/go-depthmesh/pkg/pipeline"
)

// exportFlags holds the flag values for the export command
type exportFlags struct {
	format     string
	outDir     string
	jobs       int
	resolution int
	brightness int
	gamma      float64
	depthScale float64
	scale      float64
	emission   string
	mesh       string
	stlASCII   bool
	stlNormals bool
}

// exportResult is one converted input, as printed by --json
type exportResult struct {
	Input      string `json:"input"`
	Output     string `json:"output"`
	Format     string `json:"format"`
	Vertices   int    `json:"vertices"`
	Triangles  int    `json:"triangles"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"durationMs"`
}

func newExportCommand(a *app) *cobra.Command {
	flags := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export [flags] IMAGE...",
		Short: "Convert images into DXF, STL or OBJ files",
		Long: `Convert one or more images into 3D files. Each image is converted on its
own; up to --jobs images run at once. Output files are named after their
input and written to --out. A failed conversion leaves no output file.

Examples:
  depthmesh export photo.png
  depthmesh export --format obj --out meshes/ a.png b.jpg c.webp
  depthmesh export --format stl --stl-ascii --stl-normals --res 256 logo.png
  depthmesh export --format dxf --emission sparse-nonzero scan.png`,
		Args: argsAtLeast(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.exportOptions(cmd, flags)
			if err != nil {
				return err
			}
			results, err := a.runExport(cmd.Context(), flags, opts, args)
			if err != nil {
				return err
			}
			return a.printExportResults(cmd, results)
		},
	}

	defaults := pipeline.DefaultOptions()
	cmd.Flags().StringVarP(&flags.format, "format", "f", defaults.Format, "Output format: dxf, stl, obj")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", ".", "Output directory")
	cmd.Flags().IntVarP(&flags.jobs, "jobs", "j", runtime.NumCPU(), "Maximum concurrent conversions")
	cmd.Flags().IntVar(&flags.resolution, "res", 0, "Depth field resolution, clamped to the configured range (0 = configured default)")
	cmd.Flags().IntVar(&flags.brightness, "brightness", defaults.Brightness, "Brightness offset on the 0..255 scale")
	cmd.Flags().Float64Var(&flags.gamma, "gamma", defaults.Gamma, "Tone curve exponent")
	cmd.Flags().Float64Var(&flags.depthScale, "depth-scale", defaults.DepthScale, "Multiplier on normalized depth before tone adjustment")
	cmd.Flags().Float64Var(&flags.scale, "scale", defaults.Scale, "Uniform scale applied to x, y and z")
	cmd.Flags().StringVar(&flags.emission, "emission", defaults.Emission.String(), "Vertex emission: dense, sparse-nonzero")
	cmd.Flags().StringVar(&flags.mesh, "mesh", defaults.Mesh.String(), "Mesh strategy: grid, sequential")
	cmd.Flags().BoolVar(&flags.stlASCII, "stl-ascii", false, "Write ASCII STL (default from config)")
	cmd.Flags().BoolVar(&flags.stlNormals, "stl-normals", false, "Compute STL facet normals (default from config)")

	return cmd
}

// exportOptions merges flags over the configured defaults
func (a *app) exportOptions(cmd *cobra.Command, flags *exportFlags) (pipeline.Options, error) {
	opts := a.cfg.DefaultOptions()
	opts.Format = flags.format
	opts.Resolution = a.cfg.Pipeline.ClampResolution(flags.resolution)
	opts.Brightness = flags.brightness
	opts.Gamma = flags.gamma
	opts.DepthScale = flags.depthScale
	opts.Scale = flags.scale

	var err error
	if opts.Emission, err = geometry.ParseEmissionPolicy(flags.emission); err != nil {
		return opts, err
	}
	if opts.Mesh, err = geometry.ParseMeshStrategy(flags.mesh); err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("stl-ascii") {
		opts.STLASCII = flags.stlASCII
	}
	if cmd.Flags().Changed("stl-normals") {
		opts.STLNormals = flags.stlNormals
	}
	if flags.jobs < 1 {
		return opts, core.NewError(core.StageOptions, core.ErrInvalidParameter, "jobs %d must be at least 1", flags.jobs)
	}
	if _, err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// runExport converts every input independently, at most flags.jobs at a time.
// The first failure cancels conversions that have not finished.
func (a *app) runExport(ctx context.Context, flags *exportFlags, opts pipeline.Options, inputs []string) ([]exportResult, error) {
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	outputs, err := outputPaths(inputs, flags.outDir, format)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(a.cfg.PipelineSettings(), a.logger)
	results := make([]exportResult, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.jobs)
	for i, input := range inputs {
		g.Go(func() error {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", input, err)
			}
			result, err := p.ExportFile(ctx, data, opts, outputs[i])
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			results[i] = exportResult{
				Input:      input,
				Output:     outputs[i],
				Format:     result.Format.String(),
				Vertices:   result.Vertices,
				Triangles:  result.Triangles,
				Bytes:      result.Bytes,
				DurationMs: result.Duration.Milliseconds(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("batch complete", zap.Int("inputs", len(inputs)), zap.Int("jobs", flags.jobs))
	return results, nil
}

// outputPaths names each output after its input. Two inputs that would
// write the same file are rejected up front.
func outputPaths(inputs []string, outDir string, format export.Format) ([]string, error) {
	outputs := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, input := range inputs {
		base := filepath.Base(input)
		out := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+format.Extension())
		if prev, ok := seen[out]; ok {
			return nil, core.NewError(core.StageOptions, core.ErrInvalidParameter,
				"%s and %s would both write %s", prev, input, out)
		}
		seen[out] = input
		outputs[i] = out
	}
	return outputs, nil
}

func (a *app) printExportResults(cmd *cobra.Command, results []exportResult) error {
	if a.jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"exports": results})
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d vertices, %d triangles, %d bytes)\n",
			r.Input, r.Output, r.Vertices, r.Triangles, r.Bytes); err != nil {
			return err
		}
	}
	return nil
}
