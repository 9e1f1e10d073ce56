package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/apngtool/internal/engine"
	"github.com/ivlev/apngtool/internal/manifest"
	"github.com/ivlev/apngtool/internal/source"
	"github.com/ivlev/apngtool/internal/system"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble an APNG from pages, images, QR payloads or a manifest",
	Long: `Assemble an Animated PNG. The first page becomes the static image shown
by viewers without APNG support; --static-frame also plays it as frame 0.
Every following page becomes one animation frame.

Inputs:
  *.pdf      one frame per page
  *.txt      one QR code per non-empty line
  directory  every image in lexical order
  image      a single image
Without --input or --manifest the newest PDF in input/pdf is used.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	f := buildCmd.Flags()
	f.String("input", "", "PDF, text file of QR payloads, image or image directory")
	f.String("manifest", "", "YAML animation manifest, or a directory to use its newest (instead of --input)")
	f.String("output", "", "output file (default: output/<input>_<timestamp>.png)")
	f.Uint32("plays", 0, "number of times to play the animation, 0 loops forever")
	f.Uint16("delay-num", 1, "frame delay numerator")
	f.Uint16("delay-den", 10, "frame delay denominator (0 means 1/100 s)")
	f.String("dispose", "none", "dispose op: none, background, previous")
	f.String("blend", "source", "blend op: source, over")
	f.Bool("static-frame", false, "also play the static image as frame 0")
	f.Int("width", 0, "frame width, 0 follows the height's aspect ratio or the source")
	f.Int("height", 0, "frame height, 0 follows the width's aspect ratio or the source")
	f.Int("dpi", 150, "PDF render resolution")
	f.Int("qr-size", 256, "QR frame size in pixels")
	f.String("compression", "default", "zlib level: default, none, speed, best")
	f.String("crop", "", "store only the changed region of each frame: exact, tolerant")
}

func runBuild(cmd *cobra.Command, args []string) error {
	bindCommandFlags(cmd, map[string]string{
		"input":        "input",
		"manifest":     "manifest",
		"output":       "output",
		"plays":        "plays",
		"delay_num":    "delay-num",
		"delay_den":    "delay-den",
		"dispose":      "dispose",
		"blend":        "blend",
		"static_frame": "static-frame",
		"width":        "width",
		"height":       "height",
		"dpi":          "dpi",
		"qr_size":      "qr-size",
		"compression":  "compression",
		"crop":         "crop",
	})

	logger, cfg, codec, err := setup()
	defer func() {
		_ = logger.Sync()
	}()
	if err != nil {
		return err
	}

	if cfg.InputPath == "" && cfg.ManifestPath == "" {
		latest, err := system.FindLatestPDF(filepath.Join("input", "pdf"))
		if err != nil {
			return fmt.Errorf("no input given: %w", err)
		}
		cfg.InputPath = latest
		logger.Info("selected newest PDF", zap.String("input", latest))
	}
	if info, err := os.Stat(cfg.ManifestPath); err == nil && info.IsDir() {
		latest, err := manifest.FindLatestManifest(cfg.ManifestPath)
		if err != nil {
			return err
		}
		cfg.ManifestPath = latest
		logger.Info("selected newest manifest", zap.String("manifest", latest))
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaultOutput(cfg.InputPath, cfg.ManifestPath)
	}
	if err := cfg.ValidateBuild(); err != nil {
		return err
	}

	var src source.Source
	if cfg.InputPath != "" {
		src, err = source.Open(cfg.InputPath, cfg.QRSize)
		if err != nil {
			return fmt.Errorf("opening source: %w", err)
		}
		defer src.Close()
	}

	project := engine.NewProject(cfg, src, codec, logger)
	if _, err := project.Build(cmd.Context()); err != nil {
		logger.Error("build failed", zap.Error(err))
		return err
	}
	return nil
}

// defaultOutput names the result after its input and the current time.
func defaultOutput(input, manifestPath string) string {
	nameSource := input
	if nameSource == "" {
		nameSource = filepath.Dir(manifestPath)
	}
	baseName := filepath.Base(nameSource)
	nameOnly := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	cleanName := strings.ReplaceAll(nameOnly, " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.png", cleanName, timestamp))
}
