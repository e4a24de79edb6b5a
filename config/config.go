// Package config - Service configuration from YAML or TOML files, .env files and the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/fusion"
	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/labels"
	"github.com/nvr-ai/go-multiview/logging"
)

// Environment variables that override file values.
const (
	EnvAddr       = "MULTIVIEW_ADDR"
	EnvModelPath  = "MULTIVIEW_MODEL_PATH"
	EnvConfidence = "MULTIVIEW_CONFIDENCE"
	EnvStrategy   = "MULTIVIEW_STRATEGY"
	EnvLogLevel   = "MULTIVIEW_LOG_LEVEL"
)

// ModelConfig configures the detector.
type ModelConfig struct {
	detector.YOLOConfig `yaml:",inline"`
	// Classes lists the model output class names in index order. Empty means
	// the drink model classes.
	Classes []string `yaml:"classes" toml:"classes"`
}

// Detector returns the detector configuration with the class set resolved.
func (m ModelConfig) Detector() detector.YOLOConfig {
	c := m.YOLOConfig
	c.Classes = labels.DrinkClasses
	if len(m.Classes) > 0 {
		c.Classes = labels.NewClassSet(labels.ParseLabels(m.Classes)...)
	}
	return c
}

// FusionConfig configures the fusion engine.
type FusionConfig struct {
	// Strategy is "max" or "geometric".
	Strategy string `yaml:"strategy" toml:"strategy"`
	// Reserved are the container labels.
	Reserved fusion.ReservedLabels `yaml:"reserved" toml:"reserved"`
	// StrictVocabulary rejects labels the model does not know.
	StrictVocabulary bool `yaml:"strict_vocabulary" toml:"strict_vocabulary"`
	// ClassAwareDedup only deduplicates boxes of the same label.
	ClassAwareDedup bool `yaml:"class_aware_dedup" toml:"class_aware_dedup"`
	// OneToOneDedup lets each reference box absorb at most one other box.
	OneToOneDedup bool `yaml:"one_to_one_dedup" toml:"one_to_one_dedup"`
	// MaxFeatures caps the keypoints kept per image for registration.
	MaxFeatures int `yaml:"max_features" toml:"max_features"`
}

// CameraConfig describes one capture device.
type CameraConfig struct {
	// ID names the camera in results, e.g. camera1.
	ID string `yaml:"id" toml:"id"`
	// Device is a device index ("0") or a stream URL or file path.
	Device string `yaml:"device" toml:"device"`
	Width  int    `yaml:"width" toml:"width"`
	Height int    `yaml:"height" toml:"height"`
	// Resolution is a preset such as "720p" or "1280x720". It takes
	// precedence over Width and Height.
	Resolution string `yaml:"resolution" toml:"resolution"`
}

// Size returns the requested capture size, zero for the device default.
func (c CameraConfig) Size() (int, int, error) {
	if c.Resolution == "" {
		return c.Width, c.Height, nil
	}
	r, err := images.ParseResolution(c.Resolution)
	if err != nil {
		return 0, 0, err
	}
	return r.Width, r.Height, nil
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`
	// Cameras are the JSON keys accepted by /process_drink, in reference order.
	Cameras []string `yaml:"cameras" toml:"cameras"`
}

// Config is the complete service configuration.
type Config struct {
	Model      ModelConfig       `yaml:"model" toml:"model"`
	Thresholds fusion.Thresholds `yaml:"thresholds" toml:"thresholds"`
	Fusion     FusionConfig      `yaml:"fusion" toml:"fusion"`
	Cameras    []CameraConfig    `yaml:"cameras" toml:"cameras"`
	Server     ServerConfig      `yaml:"server" toml:"server"`
	Log        logging.Config    `yaml:"log" toml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Model:      ModelConfig{YOLOConfig: detector.DefaultYOLOConfig()},
		Thresholds: fusion.DefaultThresholds(),
		Fusion: FusionConfig{
			Strategy:         string(fusion.StrategyMax),
			Reserved:         fusion.DefaultReservedLabels(),
			StrictVocabulary: true,
			MaxFeatures:      1000,
		},
		Cameras: []CameraConfig{
			{ID: "camera1", Device: "0", Width: 640, Height: 480},
			{ID: "camera2", Device: "1", Width: 640, Height: 480},
			{ID: "camera3", Device: "2", Width: 640, Height: 480},
		},
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 32 << 20,
			Cameras:      []string{"camera1", "camera2", "camera3"},
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads the configuration file at path over the defaults, then applies
// .env files and environment overrides. An empty path skips the file. Files
// ending in .toml are parsed as TOML, everything else as YAML.
//
// Arguments:
//   - path: The configuration file path, or "".
//   - envFiles: Optional .env files; missing files are ignored.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if reading, parsing or validation fails.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", path)
		}
		if err := Parse(data, filepath.Ext(path), cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %q", path)
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "failed to load env file %q", f)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over cfg. ext selects the format: ".toml" or YAML.
func Parse(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// ApplyEnv overrides fields from environment variables.
//
// Arguments:
//   - lookup: The environment lookup, usually os.LookupEnv.
//
// Returns:
//   - error: An error if a numeric override cannot be parsed.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		c.Model.ModelPath = v
	}
	if v, ok := lookup(EnvConfidence); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvConfidence)
		}
		c.Thresholds.DetectionConfidence = f
	}
	if v, ok := lookup(EnvStrategy); ok && v != "" {
		c.Fusion.Strategy = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return errors.Wrap(err, "thresholds")
	}
	if _, err := fusion.ParseStrategy(c.Fusion.Strategy); err != nil {
		return errors.Wrap(err, "fusion")
	}
	if c.Fusion.Reserved.Bottle == "" || c.Fusion.Reserved.Can == "" {
		return errors.New("fusion: reserved labels must not be empty")
	}
	if c.Fusion.Reserved.Bottle == c.Fusion.Reserved.Can {
		return errors.New("fusion: reserved labels must differ")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return errors.Errorf("cameras[%d]: empty id", i)
		}
		if seen[cam.ID] {
			return errors.Errorf("cameras[%d]: duplicate id %q", i, cam.ID)
		}
		seen[cam.ID] = true
		if _, _, err := cam.Size(); err != nil {
			return errors.Wrapf(err, "cameras[%d]", i)
		}
	}
	if len(c.Server.Cameras) == 0 {
		return errors.New("server: no camera keys configured")
	}
	return nil
}

// Strategy returns the parsed fusion strategy. Call Validate first.
func (c *Config) Strategy() fusion.Strategy {
	s, _ := fusion.ParseStrategy(c.Fusion.Strategy)
	return s
}

// Vocabulary returns the label vocabulary implied by the model classes.
func (c *Config) Vocabulary() *labels.Vocabulary {
	classes := c.Model.Detector().Classes.Labels()
	return labels.NewVocabulary(c.Fusion.StrictVocabulary, classes...)
}
