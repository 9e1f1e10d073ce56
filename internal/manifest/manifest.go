package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/apngtool/internal/apng"
)

const Version = "1.0"

// Manifest describes an animation: the static image and the frames that follow it.
type Manifest struct {
	Version string  `yaml:"version"`
	Plays   uint32  `yaml:"plays"` // 0 = loop forever
	Static  Static  `yaml:"static"`
	Frames  []Frame `yaml:"frames"`
}

// Static is the image shown by decoders without APNG support.
type Static struct {
	Input       string `yaml:"input"`
	InAnimation bool   `yaml:"in_animation"` // also play it as frame 0
	DelayNum    uint16 `yaml:"delay_num,omitempty"`
	DelayDen    uint16 `yaml:"delay_den,omitempty"`
	Dispose     string `yaml:"dispose,omitempty"`
	Blend       string `yaml:"blend,omitempty"`
}

// Frame is one animation frame.
type Frame struct {
	Input    string `yaml:"input"`
	X        uint32 `yaml:"x"`
	Y        uint32 `yaml:"y"`
	DelayNum uint16 `yaml:"delay_num"`
	DelayDen uint16 `yaml:"delay_den"`
	Dispose  string `yaml:"dispose"`
	Blend    string `yaml:"blend"`
}

// Options converts the static image settings into frame options.
func (s Static) Options() (apng.FrameOptions, error) {
	return options(0, 0, s.DelayNum, s.DelayDen, s.Dispose, s.Blend)
}

// Options converts the frame settings into frame options.
func (f Frame) Options() (apng.FrameOptions, error) {
	return options(f.X, f.Y, f.DelayNum, f.DelayDen, f.Dispose, f.Blend)
}

func options(x, y uint32, num, den uint16, dispose, blend string) (apng.FrameOptions, error) {
	d, err := apng.ParseDisposeOp(dispose)
	if err != nil {
		return apng.FrameOptions{}, err
	}
	b, err := apng.ParseBlendOp(blend)
	if err != nil {
		return apng.FrameOptions{}, err
	}
	return apng.FrameOptions{
		XOffset:   x,
		YOffset:   y,
		DelayNum:  num,
		DelayDen:  den,
		DisposeOp: d,
		BlendOp:   b,
	}, nil
}

// NewFrame records the settings of a decoded frame stored at input.
func NewFrame(input string, d apng.FrameDescriptor) Frame {
	return Frame{
		Input:    input,
		X:        d.XOffset,
		Y:        d.YOffset,
		DelayNum: d.DelayNum,
		DelayDen: d.DelayDen,
		Dispose:  d.DisposeOp.String(),
		Blend:    d.BlendOp.String(),
	}
}

// Validate checks that every frame names an input and valid operators.
func (m *Manifest) Validate() error {
	if m.Static.Input == "" {
		return fmt.Errorf("manifest: static input is empty")
	}
	if _, err := m.Static.Options(); err != nil {
		return fmt.Errorf("manifest: static: %w", err)
	}
	for i, f := range m.Frames {
		if f.Input == "" {
			return fmt.Errorf("manifest: frame %d: input is empty", i)
		}
		if _, err := f.Options(); err != nil {
			return fmt.Errorf("manifest: frame %d: %w", i, err)
		}
	}
	return nil
}

// Save writes m as YAML to path.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("manifest: encoding: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads and validates the manifest at path. A missing version is
// treated as the current one.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	if m.Version == "" {
		m.Version = Version
	}
	if m.Version != Version {
		return nil, fmt.Errorf("manifest: unsupported version %q", m.Version)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Inputs lists the image paths in build order, resolved against dir.
func (m *Manifest) Inputs(dir string) []string {
	paths := make([]string, 0, len(m.Frames)+1)
	paths = append(paths, resolve(dir, m.Static.Input))
	for _, f := range m.Frames {
		paths = append(paths, resolve(dir, f.Input))
	}
	return paths
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
