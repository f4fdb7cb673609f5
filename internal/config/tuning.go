package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file overrides only what it
// names; the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Detection params
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	NMSIoUThreshold     *float64 `json:"nms_iou_threshold,omitempty"`
	ModelInputSide      *int     `json:"model_input_side,omitempty"`

	// Queue params
	QueueCapacity *int `json:"queue_capacity,omitempty"`

	// Tracker params
	EnterConfidence *float64 `json:"enter_confidence,omitempty"`
	KeepConfidence  *float64 `json:"keep_confidence,omitempty"`
	MatchIoU        *float64 `json:"match_iou,omitempty"`
	SmoothingAlpha  *float64 `json:"smoothing_alpha,omitempty"`
	MinAgeToRender  *int     `json:"min_age_to_render,omitempty"`
	GraceLost       *int     `json:"grace_lost,omitempty"`
	ClassAllowList  *string  `json:"class_allow_list,omitempty"` // comma-separated names or ids

	// Pipeline params
	ProducerDelay      *string `json:"producer_delay,omitempty"` // duration string like "33ms"
	LogEveryFrames     *int    `json:"log_every_frames,omitempty"`
	OverlayEveryFrames *int    `json:"overlay_every_frames,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields
// omitted from the JSON keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/vision/*
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any values present are in range.
func (c *TuningConfig) Validate() error {
	checkUnit := func(name string, v *float64) error {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
		return nil
	}
	for name, v := range map[string]*float64{
		"confidence_threshold": c.ConfidenceThreshold,
		"nms_iou_threshold":    c.NMSIoUThreshold,
		"enter_confidence":     c.EnterConfidence,
		"keep_confidence":      c.KeepConfidence,
		"match_iou":            c.MatchIoU,
		"smoothing_alpha":      c.SmoothingAlpha,
	} {
		if err := checkUnit(name, v); err != nil {
			return err
		}
	}

	if c.ModelInputSide != nil && *c.ModelInputSide <= 0 {
		return fmt.Errorf("model_input_side must be positive, got %d", *c.ModelInputSide)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", *c.QueueCapacity)
	}
	if c.MinAgeToRender != nil && *c.MinAgeToRender < 0 {
		return fmt.Errorf("min_age_to_render must be non-negative, got %d", *c.MinAgeToRender)
	}
	if c.GraceLost != nil && *c.GraceLost < 0 {
		return fmt.Errorf("grace_lost must be non-negative, got %d", *c.GraceLost)
	}
	if c.ProducerDelay != nil && *c.ProducerDelay != "" {
		if _, err := time.ParseDuration(*c.ProducerDelay); err != nil {
			return fmt.Errorf("invalid producer_delay '%s': %w", *c.ProducerDelay, err)
		}
	}
	if c.LogEveryFrames != nil && *c.LogEveryFrames < 0 {
		return fmt.Errorf("log_every_frames must be non-negative, got %d", *c.LogEveryFrames)
	}
	if c.OverlayEveryFrames != nil && *c.OverlayEveryFrames < 0 {
		return fmt.Errorf("overlay_every_frames must be non-negative, got %d", *c.OverlayEveryFrames)
	}

	return nil
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.25
	}
	return *c.ConfidenceThreshold
}

// GetNMSIoUThreshold returns the nms_iou_threshold value or the default.
func (c *TuningConfig) GetNMSIoUThreshold() float64 {
	if c.NMSIoUThreshold == nil {
		return 0.45
	}
	return *c.NMSIoUThreshold
}

// GetModelInputSide returns the model_input_side value or the default.
func (c *TuningConfig) GetModelInputSide() int {
	if c.ModelInputSide == nil {
		return 640
	}
	return *c.ModelInputSide
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 24
	}
	return *c.QueueCapacity
}

// GetEnterConfidence returns the enter_confidence value or the default.
func (c *TuningConfig) GetEnterConfidence() float64 {
	if c.EnterConfidence == nil {
		return 0.5
	}
	return *c.EnterConfidence
}

// GetKeepConfidence returns the keep_confidence value or the default.
func (c *TuningConfig) GetKeepConfidence() float64 {
	if c.KeepConfidence == nil {
		return 0.25
	}
	return *c.KeepConfidence
}

// GetMatchIoU returns the match_iou value or the default.
func (c *TuningConfig) GetMatchIoU() float64 {
	if c.MatchIoU == nil {
		return 0.3
	}
	return *c.MatchIoU
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.25
	}
	return *c.SmoothingAlpha
}

// GetMinAgeToRender returns the min_age_to_render value or the default.
func (c *TuningConfig) GetMinAgeToRender() int {
	if c.MinAgeToRender == nil {
		return 3
	}
	return *c.MinAgeToRender
}

// GetGraceLost returns the grace_lost value or the default.
func (c *TuningConfig) GetGraceLost() int {
	if c.GraceLost == nil {
		return 5
	}
	return *c.GraceLost
}

// GetClassAllowList returns the class_allow_list value or the default
// (empty, meaning every class is tracked).
func (c *TuningConfig) GetClassAllowList() string {
	if c.ClassAllowList == nil {
		return ""
	}
	return *c.ClassAllowList
}

// GetProducerDelay parses and returns the ProducerDelay as a
// time.Duration. Zero means read as fast as the source allows.
func (c *TuningConfig) GetProducerDelay() time.Duration {
	if c.ProducerDelay == nil || *c.ProducerDelay == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.ProducerDelay)
	if err != nil {
		return 0
	}
	return d
}

// GetLogEveryFrames returns the log_every_frames value or the default.
func (c *TuningConfig) GetLogEveryFrames() int {
	if c.LogEveryFrames == nil {
		return 50
	}
	return *c.LogEveryFrames
}

// GetOverlayEveryFrames returns the overlay_every_frames value or the default.
func (c *TuningConfig) GetOverlayEveryFrames() int {
	if c.OverlayEveryFrames == nil {
		return 1
	}
	return *c.OverlayEveryFrames
}
