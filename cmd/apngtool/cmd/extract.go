package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/apngtool/internal/engine"
	"github.com/ivlev/apngtool/internal/system"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Write the frames of an APNG as PNG files",
	Long: `Decode an APNG and write every displayed image as frame_NNN.png.
frame_000.png is always the first frame as stored. With --raw the frames are
also written as stored (raw_NNN.png) along with a manifest.yaml that
'apngtool build --manifest' turns back into the same animation.
Without --input the newest PNG in output/ is used.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	f := extractCmd.Flags()
	f.String("input", "", "APNG file to extract")
	f.String("output", "", "directory for the extracted frames")
	f.Bool("include-first", false, "composite frame 0 as the first animation step")
	f.Bool("raw", false, "also write frames as stored and a rebuild manifest")
}

func runExtract(cmd *cobra.Command, args []string) error {
	bindCommandFlags(cmd, map[string]string{
		"input":         "input",
		"output":        "output",
		"include_first": "include-first",
		"raw":           "raw",
	})

	logger, cfg, codec, err := setup()
	defer func() {
		_ = logger.Sync()
	}()
	if err != nil {
		return err
	}

	if cfg.InputPath == "" {
		latest, err := system.FindLatestAnimation("output")
		if err != nil {
			return fmt.Errorf("no input given: %w", err)
		}
		cfg.InputPath = latest
		logger.Info("selected newest animation", zap.String("input", latest))
	}
	if err := cfg.ValidateExtract(); err != nil {
		return err
	}

	project := engine.NewProject(cfg, nil, codec, logger)
	report, err := project.Extract(cmd.Context())
	if err != nil {
		logger.Error("extract failed", zap.Error(err))
		return err
	}
	logger.Info("frames written", zap.String("dir", report.Output), zap.Int("frames", report.Frames))
	return nil
}
