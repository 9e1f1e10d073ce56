package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/apngtool/internal/analyzer"
	"github.com/ivlev/apngtool/internal/apng"
	"github.com/ivlev/apngtool/internal/config"
	"github.com/ivlev/apngtool/internal/manifest"
	"github.com/ivlev/apngtool/internal/source"
)

// Project runs one build, extract or info job.
type Project struct {
	Config *config.Config
	Source source.Source // pages for Build; nil when building from a manifest
	Codec  apng.Codec
	Logger *zap.Logger
}

func NewProject(cfg *config.Config, src source.Source, codec apng.Codec, logger *zap.Logger) *Project {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Project{
		Config: cfg,
		Source: src,
		Codec:  codec,
		Logger: logger,
	}
}

// plan is the frame layout of one build. Page 0 is the static image.
type plan struct {
	src     source.Source
	static  *apng.FrameOptions // nil keeps the static image out of the animation
	options []apng.FrameOptions
	plays   uint32

	detector analyzer.Detector // nil stores every page in full
}

// Build renders every page, encodes the pages concurrently and assembles
// them in page order into an APNG written to the output path.
func (p *Project) Build(ctx context.Context) (*Report, error) {
	start := time.Now()

	pl, err := p.plan()
	if err != nil {
		return nil, err
	}
	if pl.src != p.Source {
		defer pl.src.Close()
	}

	pageCount := pl.src.PageCount()
	if pageCount == 0 {
		return nil, errors.New("source has no pages")
	}
	if pageCount == 1 && pl.static == nil {
		p.Logger.Warn("single page without static frame, animation will have no frames")
	}

	p.Logger.Info("building animation",
		zap.String("input", p.Config.InputPath),
		zap.String("manifest", p.Config.ManifestPath),
		zap.Int("pages", pageCount),
		zap.Int("workers", p.Config.Workers))

	renderStart := time.Now()
	encoded, err := p.encodePages(ctx, pl, pageCount)
	if err != nil {
		return nil, err
	}
	renderTime := time.Since(renderStart)

	assembleStart := time.Now()
	b, err := apng.NewBuilderFromPNG(p.Codec, encoded[0], pl.plays, pl.static, apng.WithLogger(p.Logger))
	if err != nil {
		return nil, fmt.Errorf("static image: %w", err)
	}
	for i := 1; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.AddPNGFrame(encoded[i], pl.options[i]); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
	}
	data := b.Finalize()

	if dir := filepath.Dir(p.Config.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(p.Config.OutputPath, data, 0644); err != nil {
		return nil, err
	}

	report := &Report{
		Operation:    "build",
		Input:        p.Config.InputPath,
		Output:       p.Config.OutputPath,
		Pages:        pageCount,
		Frames:       int(b.FrameCount()),
		Bytes:        len(data),
		Total:        time.Since(start),
		Render:       renderTime,
		Assemble:     time.Since(assembleStart),
		BuildVersion: p.Config.BuildVersion,
	}
	p.Logger.Info("animation written",
		zap.String("output", p.Config.OutputPath),
		zap.Uint32("frames", b.FrameCount()),
		zap.Uint32("plays", pl.plays),
		zap.Int("bytes", len(data)))
	p.finish(report)
	return report, nil
}

// encodePages renders and encodes every page on a bounded pool. The first
// failure cancels the remaining pages. With a detector, pages are rendered
// first and each frame is then cut down to the region that changed since
// the page before it.
func (p *Project) encodePages(ctx context.Context, pl *plan, pageCount int) ([][]byte, error) {
	if pl.detector == nil {
		return p.parallel(ctx, pageCount, func(i int) ([]byte, error) {
			img, err := p.renderPage(pl.src, i)
			if err != nil {
				return nil, err
			}
			return p.encode(i, img)
		})
	}

	pages := make([]*image.NRGBA, pageCount)
	if _, err := p.parallel(ctx, pageCount, func(i int) ([]byte, error) {
		img, err := p.renderPage(pl.src, i)
		if err != nil {
			return nil, err
		}
		pages[i] = apng.ToNRGBA(img)
		return nil, nil
	}); err != nil {
		return nil, err
	}

	crop := make([]bool, pageCount)
	for i := range crop {
		crop[i] = pl.croppable(i, pages)
	}
	return p.parallel(ctx, pageCount, func(i int) ([]byte, error) {
		if !crop[i] {
			return p.encode(i, pages[i])
		}
		blocks, err := pl.detector.Detect(pages[i-1], pages[i])
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		r := analyzer.Bounds(blocks)
		if r.Empty() {
			r = image.Rect(0, 0, 1, 1)
		}
		pl.options[i].XOffset = uint32(r.Min.X)
		pl.options[i].YOffset = uint32(r.Min.Y)
		p.Logger.Debug("frame cropped",
			zap.Int("page", i),
			zap.Int("blocks", len(blocks)),
			zap.Stringer("region", r))
		return p.encode(i, pages[i].SubImage(r))
	})
}

// parallel runs fn for every page index with at most Workers in flight and
// collects the results in page order.
func (p *Project) parallel(ctx context.Context, n int, fn func(i int) ([]byte, error)) ([][]byte, error) {
	out := make([][]byte, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := fn(i)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Project) renderPage(src source.Source, i int) (image.Image, error) {
	img, err := src.RenderPage(i, p.Config.DPI)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", i, err)
	}
	return scale(img, p.Config.Width, p.Config.Height), nil
}

func (p *Project) encode(i int, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Codec.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding page %d: %w", i, err)
	}
	p.Logger.Debug("page ready", zap.Int("page", i), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// croppable reports whether page i may be stored as a partial frame: the
// canvas must still show page i-1 in full when page i is drawn.
func (pl *plan) croppable(i int, pages []*image.NRGBA) bool {
	if i == 0 || pages[i].Rect.Size() != pages[i-1].Rect.Size() {
		return false
	}
	prev := pl.static
	if i > 1 {
		prev = &pl.options[i-1]
	}
	if prev == nil || prev.DisposeOp != apng.DisposeOpNone {
		return false
	}
	fo := pl.options[i]
	return fo.BlendOp == apng.BlendOpSource && fo.XOffset == 0 && fo.YOffset == 0
}

func (p *Project) plan() (*plan, error) {
	var (
		pl  *plan
		err error
	)
	if p.Config.ManifestPath != "" {
		pl, err = p.manifestPlan()
	} else {
		pl, err = p.sourcePlan()
	}
	if err != nil {
		return nil, err
	}
	if p.Config.Crop != "" {
		if pl.detector, err = analyzer.NewDetector(p.Config.Crop); err != nil {
			return nil, err
		}
	}
	return pl, nil
}

func (p *Project) sourcePlan() (*plan, error) {
	if p.Source == nil {
		return nil, errors.New("no source to build from")
	}

	fo, err := p.Config.FrameOptions()
	if err != nil {
		return nil, err
	}
	pl := &plan{
		src:     p.Source,
		options: make([]apng.FrameOptions, p.Source.PageCount()),
		plays:   p.Config.Plays,
	}
	for i := range pl.options {
		pl.options[i] = fo
	}
	if p.Config.StaticInAnimation {
		static := fo
		pl.static = &static
	}
	return pl, nil
}

func (p *Project) manifestPlan() (*plan, error) {
	m, err := manifest.Load(p.Config.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	pl := &plan{
		src:     source.NewImageListSource(m.Inputs(filepath.Dir(p.Config.ManifestPath))),
		options: make([]apng.FrameOptions, len(m.Frames)+1),
		plays:   m.Plays,
	}
	if m.Static.InAnimation {
		fo, _ := m.Static.Options()
		pl.static = &fo
	}
	for i, f := range m.Frames {
		pl.options[i+1], _ = f.Options()
	}
	p.Logger.Info("using manifest",
		zap.String("path", p.Config.ManifestPath),
		zap.Int("frames", len(m.Frames)),
		zap.Bool("static_in_animation", m.Static.InAnimation))
	return pl, nil
}

// scale resizes img to width x height with Catmull-Rom. A zero dimension
// follows the aspect ratio; both zero keeps the original size.
func scale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width == 0 && height == 0 || b.Empty() {
		return img
	}
	if width == 0 {
		width = int(float64(height) * float64(b.Dx()) / float64(b.Dy()))
	}
	if height == 0 {
		height = int(float64(width) * float64(b.Dy()) / float64(b.Dx()))
	}
	width, height = max(width, 1), max(height, 1)
	if width == b.Dx() && height == b.Dy() {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
