package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Filter modes.
const (
	FilterMovingAverage = "moving_average"
	FilterLowPass       = "lowpass"
	FilterNone          = "none"
)

// Segmentation policies.
const (
	SegmentByMarker    = "marker"
	SegmentByLabelRun  = "label_run"
	SegmentBySegmentID = "segment_id"
)

// Artifact targets.
const (
	TargetFeatures = "features"
	TargetTensor   = "tensor"
	TargetBoth     = "both"
)

// PipelineConfig is the root configuration of one dataset run. Every field is
// optional; the Get* accessors supply the defaults so partial files are safe.
type PipelineConfig struct {
	// Discovery
	InputDir      *string `json:"input_dir,omitempty" yaml:"input_dir,omitempty"`
	FileExtension *string `json:"file_extension,omitempty" yaml:"file_extension,omitempty"`

	// Decoding
	PrimaryEncoding  *string `json:"primary_encoding,omitempty" yaml:"primary_encoding,omitempty"`
	FallbackEncoding *string `json:"fallback_encoding,omitempty" yaml:"fallback_encoding,omitempty"`

	// Signal conditioning
	Filter              *string  `json:"filter,omitempty" yaml:"filter,omitempty"`
	MovingAverageWindow *int     `json:"moving_average_window,omitempty" yaml:"moving_average_window,omitempty"`
	LowPassCutoffHz     *float64 `json:"lowpass_cutoff_hz,omitempty" yaml:"lowpass_cutoff_hz,omitempty"`
	LowPassOrder        *int     `json:"lowpass_order,omitempty" yaml:"lowpass_order,omitempty"`

	// Segmentation
	Segmentation         *string `json:"segmentation,omitempty" yaml:"segmentation,omitempty"`
	MinSegmentLength     *int    `json:"min_segment_length,omitempty" yaml:"min_segment_length,omitempty"`
	MaxSegmentsPerStream *int    `json:"max_segments_per_stream,omitempty" yaml:"max_segments_per_stream,omitempty"`

	// Artifacts
	Target              *string `json:"target,omitempty" yaml:"target,omitempty"`
	TensorLength        *int    `json:"tensor_length,omitempty" yaml:"tensor_length,omitempty"`
	FeaturesOutput      *string `json:"features_output,omitempty" yaml:"features_output,omitempty"`
	FilteredOutput      *string `json:"filtered_output,omitempty" yaml:"filtered_output,omitempty"`
	TensorXOutput       *string `json:"tensor_x_output,omitempty" yaml:"tensor_x_output,omitempty"`
	TensorYOutput       *string `json:"tensor_y_output,omitempty" yaml:"tensor_y_output,omitempty"`
	TensorClassesOutput *string `json:"tensor_classes_output,omitempty" yaml:"tensor_classes_output,omitempty"`
	KeepSources         *bool   `json:"keep_sources,omitempty" yaml:"keep_sources,omitempty"`

	// Side outputs
	LedgerPath *string `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`
	ReportDir  *string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields set to nil.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field populated with the
// value its Get* accessor would fall back to.
func DefaultPipelineConfig() *PipelineConfig {
	e := EmptyPipelineConfig()
	return &PipelineConfig{
		InputDir:             ptrString(e.GetInputDir()),
		FileExtension:        ptrString(e.GetFileExtension()),
		PrimaryEncoding:      ptrString(e.GetPrimaryEncoding()),
		FallbackEncoding:     ptrString(e.GetFallbackEncoding()),
		Filter:               ptrString(e.GetFilter()),
		MovingAverageWindow:  ptrInt(e.GetMovingAverageWindow()),
		LowPassCutoffHz:      ptrFloat64(e.GetLowPassCutoffHz()),
		LowPassOrder:         ptrInt(e.GetLowPassOrder()),
		Segmentation:         ptrString(e.GetSegmentation()),
		MinSegmentLength:     ptrInt(e.GetMinSegmentLength()),
		MaxSegmentsPerStream: ptrInt(e.GetMaxSegmentsPerStream()),
		Target:               ptrString(e.GetTarget()),
		TensorLength:         ptrInt(e.GetTensorLength()),
		FeaturesOutput:       ptrString(e.GetFeaturesOutput()),
		FilteredOutput:       ptrString(e.GetFilteredOutput()),
		TensorXOutput:        ptrString(e.GetTensorXOutput()),
		TensorYOutput:        ptrString(e.GetTensorYOutput()),
		TensorClassesOutput:  ptrString(e.GetTensorClassesOutput()),
		KeepSources:          ptrBool(e.GetKeepSources()),
		LedgerPath:           ptrString(e.GetLedgerPath()),
		ReportDir:            ptrString(e.GetReportDir()),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON or YAML file.
// The file is validated to ensure it has a known extension and is under the max file size.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyPipelineConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.Filter != nil {
		switch *c.Filter {
		case FilterMovingAverage, FilterLowPass, FilterNone:
		default:
			return fmt.Errorf("filter must be one of %q, %q, %q, got %q",
				FilterMovingAverage, FilterLowPass, FilterNone, *c.Filter)
		}
	}

	if c.Segmentation != nil {
		switch *c.Segmentation {
		case SegmentByMarker, SegmentByLabelRun, SegmentBySegmentID:
		default:
			return fmt.Errorf("segmentation must be one of %q, %q, %q, got %q",
				SegmentByMarker, SegmentByLabelRun, SegmentBySegmentID, *c.Segmentation)
		}
	}

	if c.Target != nil {
		switch *c.Target {
		case TargetFeatures, TargetTensor, TargetBoth:
		default:
			return fmt.Errorf("target must be one of %q, %q, %q, got %q",
				TargetFeatures, TargetTensor, TargetBoth, *c.Target)
		}
	}

	if c.MovingAverageWindow != nil && *c.MovingAverageWindow < 1 {
		return fmt.Errorf("moving_average_window must be at least 1, got %d", *c.MovingAverageWindow)
	}

	if c.LowPassCutoffHz != nil {
		if v := *c.LowPassCutoffHz; v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("lowpass_cutoff_hz must be positive and finite, got %f", v)
		}
	}

	if c.LowPassOrder != nil && (*c.LowPassOrder < 1 || *c.LowPassOrder > 8) {
		return fmt.Errorf("lowpass_order must be between 1 and 8, got %d", *c.LowPassOrder)
	}

	if c.MinSegmentLength != nil && *c.MinSegmentLength < 1 {
		return fmt.Errorf("min_segment_length must be at least 1, got %d", *c.MinSegmentLength)
	}

	if c.MaxSegmentsPerStream != nil && *c.MaxSegmentsPerStream < 0 {
		return fmt.Errorf("max_segments_per_stream must be non-negative, got %d", *c.MaxSegmentsPerStream)
	}

	if c.TensorLength != nil && *c.TensorLength < 1 {
		return fmt.Errorf("tensor_length must be at least 1, got %d", *c.TensorLength)
	}

	if c.FileExtension != nil && !strings.HasPrefix(*c.FileExtension, ".") {
		return fmt.Errorf("file_extension must start with '.', got %q", *c.FileExtension)
	}

	return nil
}

// GetInputDir returns the input directory or the default.
func (c *PipelineConfig) GetInputDir() string {
	if c.InputDir == nil || *c.InputDir == "" {
		return "toDoFilterData"
	}
	return *c.InputDir
}

// GetFileExtension returns the eligible input extension or the default.
func (c *PipelineConfig) GetFileExtension() string {
	if c.FileExtension == nil || *c.FileExtension == "" {
		return ".csv"
	}
	return *c.FileExtension
}

// GetPrimaryEncoding returns the primary text encoding name or the default.
func (c *PipelineConfig) GetPrimaryEncoding() string {
	if c.PrimaryEncoding == nil || *c.PrimaryEncoding == "" {
		return "utf-8"
	}
	return *c.PrimaryEncoding
}

// GetFallbackEncoding returns the fallback text encoding name or the default.
func (c *PipelineConfig) GetFallbackEncoding() string {
	if c.FallbackEncoding == nil || *c.FallbackEncoding == "" {
		return "iso-8859-1"
	}
	return *c.FallbackEncoding
}

// GetFilter returns the filter mode or the default.
func (c *PipelineConfig) GetFilter() string {
	if c.Filter == nil || *c.Filter == "" {
		return FilterMovingAverage
	}
	return *c.Filter
}

// GetMovingAverageWindow returns the moving average width or the default.
func (c *PipelineConfig) GetMovingAverageWindow() int {
	if c.MovingAverageWindow == nil {
		return 5
	}
	return *c.MovingAverageWindow
}

// GetLowPassCutoffHz returns the low-pass cutoff or the default.
func (c *PipelineConfig) GetLowPassCutoffHz() float64 {
	if c.LowPassCutoffHz == nil {
		return 3.0
	}
	return *c.LowPassCutoffHz
}

// GetLowPassOrder returns the Butterworth order or the default.
func (c *PipelineConfig) GetLowPassOrder() int {
	if c.LowPassOrder == nil {
		return 4
	}
	return *c.LowPassOrder
}

// GetSegmentation returns the segmentation policy or the default.
func (c *PipelineConfig) GetSegmentation() string {
	if c.Segmentation == nil || *c.Segmentation == "" {
		return SegmentByLabelRun
	}
	return *c.Segmentation
}

// GetMinSegmentLength returns the minimum retained segment length or the default.
func (c *PipelineConfig) GetMinSegmentLength() int {
	if c.MinSegmentLength == nil {
		return 20
	}
	return *c.MinSegmentLength
}

// GetMaxSegmentsPerStream returns the per-stream segment cap (0 = unlimited).
func (c *PipelineConfig) GetMaxSegmentsPerStream() int {
	if c.MaxSegmentsPerStream == nil {
		return 0
	}
	return *c.MaxSegmentsPerStream
}

// GetTarget returns the artifact target or the default.
func (c *PipelineConfig) GetTarget() string {
	if c.Target == nil || *c.Target == "" {
		return TargetFeatures
	}
	return *c.Target
}

// WantsFeatures reports whether the feature dataset is produced.
func (c *PipelineConfig) WantsFeatures() bool {
	t := c.GetTarget()
	return t == TargetFeatures || t == TargetBoth
}

// WantsTensor reports whether the tensor pair is produced.
func (c *PipelineConfig) WantsTensor() bool {
	t := c.GetTarget()
	return t == TargetTensor || t == TargetBoth
}

// GetTensorLength returns the fixed tensor window or the default.
func (c *PipelineConfig) GetTensorLength() int {
	if c.TensorLength == nil {
		return 100
	}
	return *c.TensorLength
}

// GetFeaturesOutput returns the feature dataset path or the default.
func (c *PipelineConfig) GetFeaturesOutput() string {
	if c.FeaturesOutput == nil || *c.FeaturesOutput == "" {
		return "training_dataset.csv"
	}
	return *c.FeaturesOutput
}

// GetFilteredOutput returns the filtered samples path; empty disables it.
func (c *PipelineConfig) GetFilteredOutput() string {
	if c.FilteredOutput == nil {
		return ""
	}
	return *c.FilteredOutput
}

// GetTensorXOutput returns the tensor array path or the default.
func (c *PipelineConfig) GetTensorXOutput() string {
	if c.TensorXOutput == nil || *c.TensorXOutput == "" {
		return "X.npy"
	}
	return *c.TensorXOutput
}

// GetTensorYOutput returns the one-hot label array path or the default.
func (c *PipelineConfig) GetTensorYOutput() string {
	if c.TensorYOutput == nil || *c.TensorYOutput == "" {
		return "y.npy"
	}
	return *c.TensorYOutput
}

// GetTensorClassesOutput returns the one-hot column order sidecar path or the default.
func (c *PipelineConfig) GetTensorClassesOutput() string {
	if c.TensorClassesOutput == nil || *c.TensorClassesOutput == "" {
		return "classes.json"
	}
	return *c.TensorClassesOutput
}

// GetKeepSources reports whether consumed source files are retained.
func (c *PipelineConfig) GetKeepSources() bool {
	if c.KeepSources == nil {
		return false
	}
	return *c.KeepSources
}

// GetLedgerPath returns the sqlite ledger path; empty disables the ledger.
func (c *PipelineConfig) GetLedgerPath() string {
	if c.LedgerPath == nil {
		return ""
	}
	return *c.LedgerPath
}

// GetReportDir returns the report output directory; empty disables the report.
func (c *PipelineConfig) GetReportDir() string {
	if c.ReportDir == nil {
		return ""
	}
	return *c.ReportDir
}

// SetInputDir overrides the input directory.
func (c *PipelineConfig) SetInputDir(dir string) { c.InputDir = ptrString(dir) }

// SetTarget overrides the artifact target.
func (c *PipelineConfig) SetTarget(target string) { c.Target = ptrString(target) }

// SetLedgerPath overrides the ledger path.
func (c *PipelineConfig) SetLedgerPath(path string) { c.LedgerPath = ptrString(path) }
