package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ivlev/apngtool/internal/config"
	"github.com/ivlev/apngtool/internal/logging"
	"github.com/ivlev/apngtool/internal/pngcodec"
	"github.com/ivlev/apngtool/internal/system"
)

var (
	cfgFile string
	Version string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apngtool",
	Short: "Build and extract Animated PNG files",
	Long: `Assemble Animated PNG (APNG) files from PDF pages, image directories,
QR code payloads or YAML manifests, and take them apart again.

Examples:
  # One frame per PDF page, 10 fps, looping forever
  apngtool build --input slides.pdf --output slides.png --delay-den 10

  # Rebuild from an edited manifest
  apngtool build --manifest frames/manifest.yaml --output edited.png

  # Composited frames plus raw frames and a manifest
  apngtool extract --input anim.png --output frames --raw`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.Version = Version
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		cancel()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file path (e.g. apngtool.yaml)")
	rootCmd.PersistentFlags().
		String("log-level", "info", "set the logging level (e.g. debug, info, warn, error)")
	rootCmd.PersistentFlags().
		String("log-style", "terminal", "set the logging output style (terminal, json, noop)")
	rootCmd.PersistentFlags().
		Bool("stats", false, "log a performance report and append it to benchmark.log")
	rootCmd.PersistentFlags().
		Int("workers", runtime.NumCPU(), "number of concurrent encode/write workers")

	// Bind to viper
	mustBindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))
	mustBindPFlag("stats", rootCmd.PersistentFlags().Lookup("stats"))
	mustBindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))

	// Default values
	defaults := config.Default()
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.style", string(logging.StyleTerminal))
	viper.SetDefault("workers", defaults.Workers)
	viper.SetDefault("dpi", defaults.DPI)
	viper.SetDefault("qr_size", defaults.QRSize)
	viper.SetDefault("delay_num", defaults.DelayNum)
	viper.SetDefault("delay_den", defaults.DelayDen)
	viper.SetDefault("dispose", defaults.Dispose)
	viper.SetDefault("blend", defaults.Blend)
	viper.SetDefault("compression", defaults.Compression)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}

		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("apngtool")
	}

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("APNGTOOL")                         // APNGTOOL_ prefix for env vars
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace . with _ in env var names
	viper.AutomaticEnv()                                   // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		// Only error if user explicitly specified a config file
		fmt.Fprintf(os.Stderr, "Error reading config file [%s]: %v\n", viper.ConfigFileUsed(), err)
		os.Exit(1)
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", key, err))
	}
}

// setup builds the logger, loads the merged configuration and the PNG
// codec shared by every subcommand.
func setup() (*zap.Logger, *config.Config, pngcodec.Codec, error) {
	style, styleErr := logging.ParseStyle(viper.GetString("log.style"))
	logger := logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: style,
	})
	if styleErr != nil {
		return logger, nil, pngcodec.Codec{}, styleErr
	}
	system.InitResourceLimits(logger)

	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return logger, nil, pngcodec.Codec{}, fmt.Errorf("loading config: %w", err)
	}
	cfg.BuildVersion = Version

	level, err := pngcodec.ParseCompressionLevel(cfg.Compression)
	if err != nil {
		return logger, nil, pngcodec.Codec{}, fmt.Errorf("config: %w", err)
	}
	return logger, cfg, pngcodec.Codec{Level: level}, nil
}

// bindCommandFlags binds the flags of the running subcommand. Subcommands
// share keys such as input and output, so binding waits until one runs.
func bindCommandFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		mustBindPFlag(key, cmd.Flags().Lookup(name))
	}
}
