package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ivlev/apngtool/internal/analyzer"
	"github.com/ivlev/apngtool/internal/apng"
)

type Config struct {
	InputPath    string `mapstructure:"input" yaml:"input"`
	OutputPath   string `mapstructure:"output" yaml:"output"`
	ManifestPath string `mapstructure:"manifest" yaml:"manifest"`

	Width   int `mapstructure:"width" yaml:"width"` // 0 keeps the source size
	Height  int `mapstructure:"height" yaml:"height"`
	DPI     int `mapstructure:"dpi" yaml:"dpi"`
	QRSize  int `mapstructure:"qr_size" yaml:"qr_size"`
	Workers int `mapstructure:"workers" yaml:"workers"`

	Plays             uint32 `mapstructure:"plays" yaml:"plays"`
	DelayNum          uint16 `mapstructure:"delay_num" yaml:"delay_num"`
	DelayDen          uint16 `mapstructure:"delay_den" yaml:"delay_den"`
	Dispose           string `mapstructure:"dispose" yaml:"dispose"`
	Blend             string `mapstructure:"blend" yaml:"blend"`
	StaticInAnimation bool   `mapstructure:"static_frame" yaml:"static_frame"`
	Compression       string `mapstructure:"compression" yaml:"compression"`
	Crop              string `mapstructure:"crop" yaml:"crop"` // "", "exact" or "tolerant"

	IncludeFirst bool `mapstructure:"include_first" yaml:"include_first"`
	WriteRaw     bool `mapstructure:"raw" yaml:"raw"`

	ShowStats    bool   `mapstructure:"stats" yaml:"stats"`
	BuildVersion string `mapstructure:"-" yaml:"-"`
}

// Default returns the settings used when neither flags nor a config file
// override them.
func Default() *Config {
	return &Config{
		DPI:         150,
		QRSize:      256,
		Workers:     runtime.NumCPU(),
		DelayNum:    1,
		DelayDen:    10,
		Dispose:     apng.DisposeOpNone.String(),
		Blend:       apng.BlendOpSource.String(),
		Compression: "default",
	}
}

// FrameOptions returns the per-frame settings applied to every built frame.
func (c *Config) FrameOptions() (apng.FrameOptions, error) {
	d, err := apng.ParseDisposeOp(c.Dispose)
	if err != nil {
		return apng.FrameOptions{}, err
	}
	b, err := apng.ParseBlendOp(c.Blend)
	if err != nil {
		return apng.FrameOptions{}, err
	}
	return apng.FrameOptions{
		DelayNum:  c.DelayNum,
		DelayDen:  c.DelayDen,
		DisposeOp: d,
		BlendOp:   b,
	}, nil
}

// ValidateBuild checks the settings of the build command.
func (c *Config) ValidateBuild() error {
	if c.InputPath == "" && c.ManifestPath == "" {
		return errors.New("config: input or manifest is required")
	}
	if c.InputPath != "" && c.ManifestPath != "" {
		return errors.New("config: input and manifest are mutually exclusive")
	}
	if c.OutputPath == "" {
		return errors.New("config: output is required")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("config: invalid size %dx%d", c.Width, c.Height)
	}
	if c.DPI <= 0 {
		return fmt.Errorf("config: dpi must be positive, got %d", c.DPI)
	}
	if c.QRSize <= 0 {
		return fmt.Errorf("config: qr_size must be positive, got %d", c.QRSize)
	}
	if _, err := c.FrameOptions(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Crop != "" {
		if _, err := analyzer.NewDetector(c.Crop); err != nil {
			return fmt.Errorf("config: crop: %w", err)
		}
	}
	return c.validateWorkers()
}

// ValidateExtract checks the settings of the extract command.
func (c *Config) ValidateExtract() error {
	if c.InputPath == "" {
		return errors.New("config: input is required")
	}
	if c.OutputPath == "" {
		return errors.New("config: output directory is required")
	}
	return c.validateWorkers()
}

func (c *Config) validateWorkers() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
