// Package config loads run parameters for background subtraction.
//
// RunConfig fields are pointers so a file may set any subset of keys; the
// Get* accessors return the built-in default for anything left unset.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical run defaults file.
const DefaultConfigPath = "config/run.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Environment variables that override file values.
const (
	EnvRank        = "FRAMEBG_RANK"
	EnvWorldSize   = "FRAMEBG_WORLD_SIZE"
	EnvCoordinator = "FRAMEBG_COORDINATOR"
)

// Strategy and transport names accepted by Validate.
var (
	strategies = []string{"sequential", "parallel", "distributed"}
	transports = []string{"local", "grpc"}
)

// RunConfig is the root run configuration.
type RunConfig struct {
	// Algorithm
	FrameCount *int `json:"frame_count,omitempty" yaml:"frame_count,omitempty"`
	Threshold  *int `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// Distribution
	Strategy        *string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Workers         *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	Transport       *string `json:"transport,omitempty" yaml:"transport,omitempty"`
	CoordinatorAddr *string `json:"coordinator_addr,omitempty" yaml:"coordinator_addr,omitempty"`
	Rank            *int    `json:"rank,omitempty" yaml:"rank,omitempty"`
	WorldSize       *int    `json:"world_size,omitempty" yaml:"world_size,omitempty"`
	ConnectTimeout  *string `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"` // duration string like "30s"

	// Files
	InputDir       *string `json:"input_dir,omitempty" yaml:"input_dir,omitempty"`
	OutputDir      *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	FramePattern   *string `json:"frame_pattern,omitempty" yaml:"frame_pattern,omitempty"`
	BackgroundName *string `json:"background_name,omitempty" yaml:"background_name,omitempty"`
	MaskName       *string `json:"mask_name,omitempty" yaml:"mask_name,omitempty"`
	ReportDir      *string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyRunConfig returns a RunConfig with every field unset.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a .json, .yaml or .yml file.
// Omitted fields stay nil and fall back to defaults through the getters.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRunConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. It panics if the file cannot be loaded and is
// intended for tests.
func MustLoadDefaultConfig() *RunConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/collective/grpclink/
	}
	for _, path := range candidates {
		if cfg, err := LoadRunConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overlays the FRAMEBG_* variables found by lookup. Pass
// os.LookupEnv in production.
func (c *RunConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRank); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRank, err)
		}
		c.Rank = ptrInt(n)
	}
	if v, ok := lookup(EnvWorldSize); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorldSize, err)
		}
		c.WorldSize = ptrInt(n)
	}
	if v, ok := lookup(EnvCoordinator); ok && v != "" {
		c.CoordinatorAddr = ptrString(strings.TrimSpace(v))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks that set values are usable.
func (c *RunConfig) Validate() error {
	if c.FrameCount != nil && *c.FrameCount < 1 {
		return fmt.Errorf("frame_count must be at least 1, got %d", *c.FrameCount)
	}
	if c.Threshold != nil && *c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", *c.Threshold)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.Strategy != nil && !oneOf(strings.ToLower(*c.Strategy), strategies) {
		return fmt.Errorf("strategy must be one of %v, got %q", strategies, *c.Strategy)
	}
	if c.Transport != nil && !oneOf(strings.ToLower(*c.Transport), transports) {
		return fmt.Errorf("transport must be one of %v, got %q", transports, *c.Transport)
	}
	if c.Rank != nil && *c.Rank < 0 {
		return fmt.Errorf("rank must be non-negative, got %d", *c.Rank)
	}
	if c.WorldSize != nil && *c.WorldSize < 0 {
		return fmt.Errorf("world_size must be non-negative, got %d", *c.WorldSize)
	}
	if c.Rank != nil && c.WorldSize != nil && *c.WorldSize > 0 && *c.Rank >= *c.WorldSize {
		return fmt.Errorf("rank %d outside world of size %d", *c.Rank, *c.WorldSize)
	}
	if c.ConnectTimeout != nil && *c.ConnectTimeout != "" {
		d, err := time.ParseDuration(*c.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("invalid connect_timeout '%s': %w", *c.ConnectTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("connect_timeout must be positive, got %s", d)
		}
	}
	if c.FramePattern != nil && strings.Count(*c.FramePattern, "%d") != 1 {
		return fmt.Errorf("frame_pattern must contain exactly one %%d, got %q", *c.FramePattern)
	}
	for key, v := range map[string]*string{"background_name": c.BackgroundName, "mask_name": c.MaskName} {
		if v != nil && (*v == "" || strings.ContainsAny(*v, `/\`)) {
			return fmt.Errorf("%s must be a plain file name, got %q", key, *v)
		}
	}
	return nil
}

// GetFrameCount returns the frame_count value or the default.
func (c *RunConfig) GetFrameCount() int {
	if c.FrameCount == nil {
		return 20
	}
	return *c.FrameCount
}

// GetThreshold returns the threshold value or the default.
func (c *RunConfig) GetThreshold() int {
	if c.Threshold == nil {
		return 30
	}
	return *c.Threshold
}

// GetStrategy returns the strategy value or the default.
func (c *RunConfig) GetStrategy() string {
	if c.Strategy == nil || *c.Strategy == "" {
		return "sequential"
	}
	return strings.ToLower(*c.Strategy)
}

// GetWorkers returns the workers value or the default.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetTransport returns the transport value or the default.
func (c *RunConfig) GetTransport() string {
	if c.Transport == nil || *c.Transport == "" {
		return "local"
	}
	return strings.ToLower(*c.Transport)
}

// GetCoordinatorAddr returns the coordinator_addr value or the default.
func (c *RunConfig) GetCoordinatorAddr() string {
	if c.CoordinatorAddr == nil || *c.CoordinatorAddr == "" {
		return "localhost:50061"
	}
	return *c.CoordinatorAddr
}

// GetRank returns the rank value or the default.
func (c *RunConfig) GetRank() int {
	if c.Rank == nil {
		return 0
	}
	return *c.Rank
}

// GetWorldSize returns world_size, falling back to the worker count when
// unset or zero.
func (c *RunConfig) GetWorldSize() int {
	if c.WorldSize == nil || *c.WorldSize == 0 {
		return c.GetWorkers()
	}
	return *c.WorldSize
}

// GetConnectTimeout parses and returns connect_timeout.
func (c *RunConfig) GetConnectTimeout() time.Duration {
	if c.ConnectTimeout == nil || *c.ConnectTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.ConnectTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetInputDir returns the input_dir value or the default.
func (c *RunConfig) GetInputDir() string {
	if c.InputDir == nil || *c.InputDir == "" {
		return "data/input"
	}
	return *c.InputDir
}

// GetOutputDir returns the output_dir value or the default.
func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "data/output"
	}
	return *c.OutputDir
}

// GetFramePattern returns the frame_pattern value or the default.
func (c *RunConfig) GetFramePattern() string {
	if c.FramePattern == nil || *c.FramePattern == "" {
		return "frame%d.png"
	}
	return *c.FramePattern
}

// GetBackgroundName returns the background_name value or the default.
func (c *RunConfig) GetBackgroundName() string {
	if c.BackgroundName == nil {
		return "background.png"
	}
	return *c.BackgroundName
}

// GetMaskName returns the mask_name value or the default.
func (c *RunConfig) GetMaskName() string {
	if c.MaskName == nil {
		return "mask.png"
	}
	return *c.MaskName
}

// GetReportDir returns report_dir. Empty disables the report.
func (c *RunConfig) GetReportDir() string {
	if c.ReportDir == nil {
		return ""
	}
	return *c.ReportDir
}
