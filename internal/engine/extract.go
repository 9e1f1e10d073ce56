package engine

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/apngtool/internal/apng"
	"github.com/ivlev/apngtool/internal/manifest"
)

// Decode reads the animation at path.
func (p *Project) Decode(path string) (*apng.Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	anim, err := apng.Decode(f, p.Codec, apng.WithLogger(p.Logger))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return anim, nil
}

// Extract decodes the input animation and writes the composited frames as
// frame_NNN.png. With WriteRaw the frames as stored are written too, as
// raw_NNN.png, together with a manifest that rebuilds the animation.
func (p *Project) Extract(ctx context.Context) (*Report, error) {
	start := time.Now()

	anim, err := p.Decode(p.Config.InputPath)
	if err != nil {
		return nil, err
	}
	rendered, err := anim.Render(p.Config.IncludeFirst)
	if err != nil {
		return nil, err
	}
	decodeTime := time.Since(start)

	p.Logger.Info("animation decoded",
		zap.String("input", p.Config.InputPath),
		zap.Bool("animated", anim.Animated),
		zap.Int("frames", len(anim.Frames)),
		zap.Uint32("declared_frames", anim.NumFrames),
		zap.Uint32("plays", anim.NumPlays),
		zap.Int("rendered", len(rendered)))
	if anim.Animated && int(anim.NumFrames) != countControlled(anim.Frames) {
		p.Logger.Warn("acTL frame count does not match fcTL chunks",
			zap.Uint32("declared", anim.NumFrames),
			zap.Int("found", countControlled(anim.Frames)))
	}

	dir := p.Config.OutputPath
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	writeStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Workers)
	for i, img := range rendered {
		p.writeAsync(gctx, g, manifest.FramePath(dir, "frame", i), img)
	}
	if p.Config.WriteRaw {
		for i, f := range anim.Frames {
			p.writeAsync(gctx, g, manifest.FramePath(dir, "raw", i), f.Image)
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.Config.WriteRaw {
		path := filepath.Join(dir, manifest.FileName)
		if err := rebuildManifest(anim).Save(path); err != nil {
			return nil, fmt.Errorf("writing manifest: %w", err)
		}
		p.Logger.Info("manifest written", zap.String("path", path))
	}

	report := &Report{
		Operation:    "extract",
		Input:        p.Config.InputPath,
		Output:       dir,
		Pages:        len(anim.Frames),
		Frames:       len(rendered),
		Total:        time.Since(start),
		Render:       decodeTime,
		Assemble:     time.Since(writeStart),
		BuildVersion: p.Config.BuildVersion,
	}
	p.finish(report)
	return report, nil
}

func (p *Project) writeAsync(ctx context.Context, g *errgroup.Group, path string, img image.Image) {
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.writePNG(path, img); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		p.Logger.Debug("frame written", zap.String("path", path))
		return nil
	})
}

func (p *Project) writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := p.Codec.Encode(w, img); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rebuildManifest describes anim in terms of the raw_NNN.png files.
func rebuildManifest(anim *apng.Animation) *manifest.Manifest {
	first := anim.Frames[0]
	m := &manifest.Manifest{
		Version: manifest.Version,
		Plays:   anim.NumPlays,
		Static: manifest.Static{
			Input:       manifest.FrameName("raw", 0),
			InAnimation: first.HasControl,
		},
	}
	if first.HasControl {
		m.Static.DelayNum = first.DelayNum
		m.Static.DelayDen = first.DelayDen
		m.Static.Dispose = first.DisposeOp.String()
		m.Static.Blend = first.BlendOp.String()
	}
	for i, f := range anim.Frames[1:] {
		m.Frames = append(m.Frames, manifest.NewFrame(manifest.FrameName("raw", i+1), f.FrameDescriptor))
	}
	return m
}

func countControlled(frames []*apng.Frame) int {
	n := 0
	for _, f := range frames {
		if f.HasControl {
			n++
		}
	}
	return n
}

// Info logs the layout of the input animation.
func (p *Project) Info(ctx context.Context) (*apng.Animation, error) {
	anim, err := p.Decode(p.Config.InputPath)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("animation",
		zap.String("input", p.Config.InputPath),
		zap.Bool("animated", anim.Animated),
		zap.Uint32("num_frames", anim.NumFrames),
		zap.Uint32("num_plays", anim.NumPlays),
		zap.Int("decoded_frames", len(anim.Frames)))
	for i, f := range anim.Frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.Logger.Info("frame",
			zap.Int("index", i),
			zap.Bool("fcTL", f.HasControl),
			zap.Uint32("seq", f.SequenceNumber),
			zap.Stringer("bounds", f.Bounds()),
			zap.String("delay", fmt.Sprintf("%d/%d", f.DelayNum, f.DelayDen)),
			zap.Stringer("dispose", f.DisposeOp),
			zap.Stringer("blend", f.BlendOp))
	}
	return anim, nil
}
