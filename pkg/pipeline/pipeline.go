package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/depth"
	"github.com/df07/go-depthmesh/pkg/export"
	"github.com/df07/go-depthmesh/pkg/geometry"
	"github.com/df07/go-depthmesh/pkg/loaders"
	"github.com/df07/go-depthmesh/pkg/preprocess"
)

// Config holds the settings shared by every run of a Pipeline
type Config struct {
	BlurKernel          int    // odd smoothing kernel side
	BackgroundThreshold uint8  // intensities strictly above are background
	BackgroundFill      uint8  // intensity written into background cells
	WorkDir             string // parent of export job directories; empty means the OS temp dir
}

// DefaultConfig returns a 5x5 blur and a 240 background threshold filled with white
func DefaultConfig() Config {
	return Config{
		BlurKernel:          depth.DefaultBlurKernel,
		BackgroundThreshold: preprocess.DefaultBackgroundThreshold,
		BackgroundFill:      255,
	}
}

// Pipeline turns image bytes into mesh artifacts and previews. It holds no
// per-run state, so one Pipeline serves concurrent runs.
type Pipeline struct {
	config      Config
	synthesizer *depth.Synthesizer
	remover     *preprocess.BackgroundRemover
	logger      *zap.Logger
}

// New creates a pipeline. A nil logger discards output.
func New(config Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:      config,
		synthesizer: &depth.Synthesizer{BlurKernel: config.BlurKernel},
		remover:     &preprocess.BackgroundRemover{Threshold: config.BackgroundThreshold, Fill: config.BackgroundFill},
		logger:      logger,
	}
}

// Result describes a completed export
type Result struct {
	Format    export.Format
	Vertices  int
	Triangles int
	Bytes     int64
	Duration  time.Duration
}

// PreviewResult holds PNG encodings of the preview stages
type PreviewResult struct {
	Grayscale []byte // composite on the chosen backdrop
	Depth     []byte // tone-adjusted depth levels
	Histogram []byte // depth distribution chart, nil unless requested
}

// BuildMesh decodes data and runs every stage up to topology. DXF runs stop
// after projection and return a mesh without faces.
func (p *Pipeline) BuildMesh(ctx context.Context, data []byte, opts Options) (*geometry.Mesh, error) {
	format, err := opts.Validate()
	if err != nil {
		return nil, err
	}
	return p.buildMesh(ctx, data, opts, format)
}

func (p *Pipeline) buildMesh(ctx context.Context, data []byte, opts Options, format export.Format) (*geometry.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	raster, decoded, err := loaders.DecodeRaster(data)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("decoded image",
		zap.String("encoding", decoded),
		zap.Stringer("raster", raster),
		zap.Duration("elapsed", time.Since(start)))

	gray, err := preprocess.ToGrayscale(raster)
	if err != nil {
		return nil, err
	}
	gray, _ = p.remover.Remove(gray)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage := time.Now()
	field, err := p.synthesizer.Synthesize(gray, depth.Params{
		Resolution: opts.Resolution,
		Brightness: opts.Brightness,
		Gamma:      opts.Gamma,
		DepthScale: opts.DepthScale,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("synthesized depth",
		zap.Int("resolution", opts.Resolution),
		zap.Duration("elapsed", time.Since(stage)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage = time.Now()
	cloud, err := geometry.Project(field, opts.Emission)
	if err != nil {
		return nil, err
	}
	cloud.Scale(opts.Scale)

	if !format.NeedsFaces() {
		return &geometry.Mesh{Cloud: cloud}, nil
	}

	mesh, err := geometry.BuildMesh(cloud, opts.Mesh)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("built mesh",
		zap.Stringer("emission", opts.Emission),
		zap.Stringer("strategy", opts.Mesh),
		zap.Int("vertices", mesh.VertexCount()),
		zap.Int("triangles", mesh.TriangleCount()),
		zap.Duration("elapsed", time.Since(stage)))
	return mesh, nil
}

// Export runs the pipeline and streams the finished artifact into w.
// Nothing is written to w unless the artifact was completed.
func (p *Pipeline) Export(ctx context.Context, data []byte, opts Options, w io.Writer) (*Result, error) {
	return p.run(ctx, data, opts, func(a *export.Artifact) error {
		_, err := a.WriteTo(w)
		return err
	})
}

// ExportFile runs the pipeline and atomically places the artifact at dest
func (p *Pipeline) ExportFile(ctx context.Context, data []byte, opts Options, dest string) (*Result, error) {
	return p.run(ctx, data, opts, func(a *export.Artifact) error {
		return a.CommitTo(dest)
	})
}

func (p *Pipeline) run(ctx context.Context, data []byte, opts Options, deliver func(*export.Artifact) error) (*Result, error) {
	start := time.Now()
	format, err := opts.Validate()
	if err != nil {
		return nil, err
	}
	exporter, err := export.NewExporter(format, opts.ExporterOptions())
	if err != nil {
		return nil, err
	}

	mesh, err := p.buildMesh(ctx, data, opts, format)
	if err != nil {
		return nil, err
	}

	job, err := export.NewJob(p.config.WorkDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := job.Close(); cerr != nil {
			p.logger.Warn("failed to clean up export job", zap.String("job", job.ID), zap.Error(cerr))
		}
	}()

	artifact, err := job.Write(format, func(w io.Writer) error {
		return exporter.Export(w, mesh.Cloud, mesh.Faces)
	})
	if err != nil {
		return nil, err
	}

	// a cancelled run discards its result instead of delivering it
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := deliver(artifact); err != nil {
		return nil, err
	}

	result := &Result{
		Format:    format,
		Vertices:  mesh.VertexCount(),
		Triangles: mesh.TriangleCount(),
		Bytes:     artifact.Size,
		Duration:  time.Since(start),
	}
	p.logger.Info("export complete",
		zap.String("job", job.ID),
		zap.Stringer("format", format),
		zap.Int("vertices", result.Vertices),
		zap.Int("triangles", result.Triangles),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Preview renders the grayscale composite and the tone-adjusted depth map.
// Unlike export, the depth image shows the levels before renormalization.
func (p *Pipeline) Preview(ctx context.Context, data []byte, opts PreviewOptions) (*PreviewResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raster, _, err := loaders.DecodeRaster(data)
	if err != nil {
		return nil, err
	}
	gray, err := preprocess.CompositeOnBackground(raster, opts.Background)
	if err != nil {
		return nil, err
	}

	base, err := p.synthesizer.Base(gray, opts.Resolution)
	if err != nil {
		return nil, err
	}
	levels, err := depth.ApplyTone(base, opts.Brightness, opts.Gamma)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &PreviewResult{}
	if result.Grayscale, err = loaders.EncodePNG(loaders.ToImage(grayRaster(gray))); err != nil {
		return nil, fmt.Errorf("failed to encode grayscale preview: %w", err)
	}
	if result.Depth, err = loaders.EncodePNG(depth.VisualizeLevels(levels)); err != nil {
		return nil, fmt.Errorf("failed to encode depth preview: %w", err)
	}
	if opts.Histogram {
		bins := opts.HistogramBins
		if bins == 0 {
			bins = 32
		}
		if result.Histogram, err = depth.Histogram(depth.Renormalize(levels), bins); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("preview complete",
		zap.Stringer("background", opts.Background),
		zap.Int("resolution", opts.Resolution),
		zap.Bool("histogram", opts.Histogram))
	return result, nil
}

// grayRaster views an intensity grid as a single-channel raster
func grayRaster(g core.IntensityGrid) *core.RasterImage {
	return &core.RasterImage{Width: g.Width, Height: g.Height, Channels: 1, Pix: g.Data}
}
