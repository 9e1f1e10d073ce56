package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ivlev/apngtool/internal/engine"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the animation control and frame descriptors of an APNG",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().String("input", "", "APNG file to inspect")
}

func runInfo(cmd *cobra.Command, args []string) error {
	bindCommandFlags(cmd, map[string]string{"input": "input"})

	logger, cfg, codec, err := setup()
	defer func() {
		_ = logger.Sync()
	}()
	if err != nil {
		return err
	}
	if cfg.InputPath == "" {
		return errors.New("--input is required")
	}

	_, err = engine.NewProject(cfg, nil, codec, logger).Info(cmd.Context())
	return err
}
