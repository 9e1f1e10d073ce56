package engine

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/apngtool/internal/apng"
	"github.com/ivlev/apngtool/internal/config"
	"github.com/ivlev/apngtool/internal/manifest"
	"github.com/ivlev/apngtool/internal/pngcodec"
	"github.com/ivlev/apngtool/internal/source"
)

var pageColors = []color.NRGBA{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
}

func writePages(t *testing.T, dir string) {
	t.Helper()
	codec := pngcodec.Codec{}
	for i, c := range pageColors {
		img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		for j := 0; j < len(img.Pix); j += 4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = c.R, c.G, c.B, c.A
		}
		f, err := os.Create(filepath.Join(dir, manifest.FrameName("page", i)))
		require.NoError(t, err)
		require.NoError(t, codec.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func buildConfig(t *testing.T) *config.Config {
	t.Helper()
	pages := filepath.Join(t.TempDir(), "pages")
	require.NoError(t, os.Mkdir(pages, 0755))
	writePages(t, pages)

	cfg := config.Default()
	cfg.InputPath = pages
	cfg.OutputPath = filepath.Join(t.TempDir(), "out", "anim.png")
	cfg.Workers = 2
	cfg.Plays = 2
	cfg.StaticInAnimation = true
	return cfg
}

func build(t *testing.T, cfg *config.Config) *Report {
	t.Helper()
	src, err := source.Open(cfg.InputPath, cfg.QRSize)
	require.NoError(t, err)
	defer src.Close()

	report, err := NewProject(cfg, src, pngcodec.Codec{}, nil).Build(context.Background())
	require.NoError(t, err)
	return report
}

func TestBuildExtractRoundTrip(t *testing.T) {
	cfg := buildConfig(t)
	report := build(t, cfg)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 3, report.Frames)

	p := NewProject(cfg, nil, pngcodec.Codec{}, nil)
	anim, err := p.Decode(cfg.OutputPath)
	require.NoError(t, err)
	assert.True(t, anim.Animated)
	assert.Equal(t, uint32(3), anim.NumFrames)
	assert.Equal(t, uint32(2), anim.NumPlays)
	require.Len(t, anim.Frames, 3)
	for i, f := range anim.Frames {
		assert.True(t, f.HasControl)
		assert.Equal(t, uint16(1), f.DelayNum)
		assert.Equal(t, uint16(10), f.DelayDen)
		assert.Equal(t, pageColors[i], f.Image.NRGBAAt(2, 2), "frame %d", i)
	}

	out := filepath.Join(t.TempDir(), "frames")
	extract := *cfg
	extract.InputPath = cfg.OutputPath
	extract.OutputPath = out
	extract.IncludeFirst = true
	extract.WriteRaw = true
	report, err = NewProject(&extract, nil, pngcodec.Codec{}, nil).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Frames)

	for i := 0; i < 4; i++ {
		assert.FileExists(t, manifest.FramePath(out, "frame", i))
	}
	for i := 0; i < 3; i++ {
		assert.FileExists(t, manifest.FramePath(out, "raw", i))
	}

	m, err := manifest.Load(filepath.Join(out, manifest.FileName))
	require.NoError(t, err)
	assert.True(t, m.Static.InAnimation)
	assert.Equal(t, uint32(2), m.Plays)
	assert.Len(t, m.Frames, 2)

	// Rebuilding from the manifest yields the same animation.
	rebuilt := *cfg
	rebuilt.InputPath = ""
	rebuilt.ManifestPath = filepath.Join(out, manifest.FileName)
	rebuilt.OutputPath = filepath.Join(t.TempDir(), "rebuilt.png")
	_, err = NewProject(&rebuilt, nil, pngcodec.Codec{}, nil).Build(context.Background())
	require.NoError(t, err)

	again, err := p.Decode(rebuilt.OutputPath)
	require.NoError(t, err)
	require.Len(t, again.Frames, len(anim.Frames))
	assert.Equal(t, anim.NumPlays, again.NumPlays)
	for i := range anim.Frames {
		assert.Equal(t, anim.Frames[i].FrameDescriptor, again.Frames[i].FrameDescriptor)
		assert.Equal(t, anim.Frames[i].Image.Pix, again.Frames[i].Image.Pix)
	}
}

func TestBuildStaticOutsideAnimation(t *testing.T) {
	cfg := buildConfig(t)
	cfg.StaticInAnimation = false
	cfg.Dispose = "background"
	cfg.Blend = "over"
	report := build(t, cfg)
	assert.Equal(t, 2, report.Frames)

	anim, err := NewProject(cfg, nil, pngcodec.Codec{}, nil).Decode(cfg.OutputPath)
	require.NoError(t, err)
	require.Len(t, anim.Frames, 3)
	assert.False(t, anim.Frames[0].HasControl)
	assert.Equal(t, apng.DisposeOpBackground, anim.Frames[1].DisposeOp)
	assert.Equal(t, apng.BlendOpOver, anim.Frames[2].BlendOp)
	assert.Equal(t, uint32(0), anim.Frames[1].SequenceNumber)
}

func TestBuildScalesPages(t *testing.T) {
	cfg := buildConfig(t)
	cfg.Width = 8
	build(t, cfg)

	anim, err := NewProject(cfg, nil, pngcodec.Codec{}, nil).Decode(cfg.OutputPath)
	require.NoError(t, err)
	for _, f := range anim.Frames {
		assert.Equal(t, image.Rect(0, 0, 8, 8), f.Image.Rect)
	}
}

// writeCropPages stores a page, a copy with two changed pixels and a
// duplicate of that copy as page_NNN.png in dir.
func writeCropPages(t *testing.T, dir string) []*image.NRGBA {
	t.Helper()
	base := image.NewNRGBA(image.Rect(0, 0, 6, 5))
	for i := 0; i < len(base.Pix); i += 4 {
		base.Pix[i], base.Pix[i+3] = 200, 255
	}
	changed := image.NewNRGBA(base.Rect)
	copy(changed.Pix, base.Pix)
	changed.SetNRGBA(2, 1, color.NRGBA{G: 255, A: 255})
	changed.SetNRGBA(3, 3, color.NRGBA{B: 255, A: 255})

	pages := []*image.NRGBA{base, changed, changed}
	for i, img := range pages {
		f, err := os.Create(filepath.Join(dir, manifest.FrameName("page", i)))
		require.NoError(t, err)
		require.NoError(t, pngcodec.Codec{}.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return pages
}

func assertCropped(t *testing.T, cfg *config.Config, pages []*image.NRGBA) {
	t.Helper()
	anim, err := NewProject(cfg, nil, pngcodec.Codec{}, nil).Decode(cfg.OutputPath)
	require.NoError(t, err)
	require.Len(t, anim.Frames, 3)
	assert.Equal(t, image.Rect(0, 0, 6, 5), anim.Frames[0].Bounds())
	assert.Equal(t, image.Rect(2, 1, 4, 4), anim.Frames[1].Bounds())
	assert.Equal(t, image.Rect(0, 0, 1, 1), anim.Frames[2].Bounds(), "identical pages keep a single pixel")

	out, err := anim.Render(true)
	require.NoError(t, err)
	require.Len(t, out, 4)
	for i, page := range pages {
		assert.Equal(t, page.Pix, out[i+1].Pix, "page %d", i)
	}
}

func TestBuildCropsChangedRegion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")
	require.NoError(t, os.Mkdir(dir, 0755))
	pages := writeCropPages(t, dir)

	cfg := config.Default()
	cfg.InputPath = dir
	cfg.OutputPath = filepath.Join(t.TempDir(), "crop.png")
	cfg.StaticInAnimation = true
	cfg.Crop = "exact"
	build(t, cfg)

	assertCropped(t, cfg, pages)
}

func TestBuildFromManifestCrops(t *testing.T) {
	dir := t.TempDir()
	pages := writeCropPages(t, dir)

	m := &manifest.Manifest{
		Version: manifest.Version,
		Static:  manifest.Static{Input: manifest.FrameName("page", 0), InAnimation: true, DelayDen: 10},
		Frames: []manifest.Frame{
			{Input: manifest.FrameName("page", 1), DelayDen: 10},
			{Input: manifest.FrameName("page", 2), DelayDen: 10},
		},
	}
	path := filepath.Join(dir, manifest.FileName)
	require.NoError(t, m.Save(path))

	cfg := config.Default()
	cfg.ManifestPath = path
	cfg.OutputPath = filepath.Join(t.TempDir(), "crop.png")
	cfg.Crop = "exact"
	_, err := NewProject(cfg, nil, pngcodec.Codec{}, nil).Build(context.Background())
	require.NoError(t, err)

	assertCropped(t, cfg, pages)
}

func TestBuildCancelled(t *testing.T) {
	cfg := buildConfig(t)
	src, err := source.Open(cfg.InputPath, 0)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewProject(cfg, src, pngcodec.Codec{}, nil).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestBuildBadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	require.NoError(t, (&manifest.Manifest{Version: manifest.Version}).Save(path))

	cfg := config.Default()
	cfg.ManifestPath = path
	cfg.OutputPath = filepath.Join(t.TempDir(), "x.png")
	_, err := NewProject(cfg, nil, pngcodec.Codec{}, nil).Build(context.Background())
	assert.ErrorContains(t, err, "static input")
}

func TestStatsWritesBenchmarkLog(t *testing.T) {
	cfg := buildConfig(t)
	cfg.ShowStats = true
	cfg.BuildVersion = "test"
	build(t, cfg)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.OutputPath), BenchmarkLog))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Build: test | Op: build")
	assert.Contains(t, string(data), "Frames: 3")
}

func TestScale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	assert.Same(t, img, scale(img, 0, 0))
	assert.Same(t, img, scale(img, 20, 10))
	assert.Equal(t, image.Rect(0, 0, 10, 5), scale(img, 10, 0).Bounds())
	assert.Equal(t, image.Rect(0, 0, 8, 4), scale(img, 0, 4).Bounds())
	assert.Equal(t, image.Rect(0, 0, 3, 7), scale(img, 3, 7).Bounds())
}
