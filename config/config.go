// Package config defines the reconstruction settings, the supported capture
// device profiles, and how settings are read from disk.
package config

import (
	"math"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/utils"
)

// Defaults for fields a config file leaves out.
const (
	DefaultMinDepth    = 0.0
	DefaultMaxDepth    = 2.0
	DefaultStride      = 1
	DefaultColorFolder = "color"
	DefaultDepthFolder = "depth"
)

// ICPConfig tunes registration.
type ICPConfig struct {
	MaxIterations      int     `json:"max_iterations"`
	ConvergenceEpsilon float64 `json:"convergence_epsilon"`
	OutlierDistance    float64 `json:"outlier_distance"`
}

// Validate ensures all parts of the config are valid.
func (c *ICPConfig) Validate(path string) error {
	if c.MaxIterations < 1 {
		return utils.NewConfigValidationError(path, utils.NewConfigError("max_iterations must be at least 1"))
	}
	if c.ConvergenceEpsilon < 0 || math.IsNaN(c.ConvergenceEpsilon) {
		return utils.NewConfigValidationError(path, utils.NewConfigError("convergence_epsilon must be non-negative"))
	}
	if !(c.OutlierDistance > 0) {
		return utils.NewConfigValidationError(path, utils.NewConfigError("outlier_distance must be positive"))
	}
	return nil
}

// Config is the full set of reconstruction settings. Treat it as a value: the
// With* helpers return modified copies.
type Config struct {
	ConfigFilePath string `json:"-"`

	MinDepth float64 `json:"min_depth"`
	MaxDepth float64 `json:"max_depth"`
	// InvertDepth overrides the profile's depth polarity when set.
	InvertDepth   *bool     `json:"invert_depth,omitempty"`
	Stride        int       `json:"stride"`
	CameraProfile string    `json:"camera_profile"`
	ColorFolder   string    `json:"color_folder"`
	DepthFolder   string    `json:"depth_folder"`
	ICP           ICPConfig `json:"icp"`
	VoxelSize     float64   `json:"voxel_size"`
}

// Default returns a config with every default filled in for the named profile.
func Default(profile string) Config {
	return Config{
		MinDepth:      DefaultMinDepth,
		MaxDepth:      DefaultMaxDepth,
		Stride:        DefaultStride,
		CameraProfile: profile,
		ColorFolder:   DefaultColorFolder,
		DepthFolder:   DefaultDepthFolder,
		ICP: ICPConfig{
			MaxIterations:      pointcloud.DefaultMaxIterations,
			ConvergenceEpsilon: pointcloud.DefaultConvergenceEpsilon,
			OutlierDistance:    pointcloud.DefaultOutlierDistance,
		},
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.CameraProfile == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "camera_profile")
	}
	if _, err := LookupProfile(c.CameraProfile); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if math.IsNaN(c.MinDepth) || math.IsNaN(c.MaxDepth) || c.MinDepth >= c.MaxDepth {
		return utils.NewConfigValidationError(path,
			utils.NewConfigError("min_depth %v must be below max_depth %v", c.MinDepth, c.MaxDepth))
	}
	if c.Stride < 1 {
		return utils.NewConfigValidationError(path, utils.NewConfigError("stride must be at least 1, got %d", c.Stride))
	}
	if c.ColorFolder == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "color_folder")
	}
	if c.DepthFolder == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "depth_folder")
	}
	if c.VoxelSize < 0 || math.IsNaN(c.VoxelSize) {
		return utils.NewConfigValidationError(path, utils.NewConfigError("voxel_size must be non-negative"))
	}
	return c.ICP.Validate(path + ".icp")
}

// Profile returns the camera profile the config names.
func (c *Config) Profile() (CameraProfile, error) {
	return LookupProfile(c.CameraProfile)
}

// Invert reports whether depth polarity should be flipped, falling back to the
// default of the profile the config names.
func (c *Config) Invert() bool {
	p, err := c.Profile()
	if err != nil {
		return c.InvertDepth != nil && *c.InvertDepth
	}
	return c.InvertWith(p)
}

// InvertWith is like Invert but falls back to the given profile's default.
func (c *Config) InvertWith(profile CameraProfile) bool {
	if c.InvertDepth != nil {
		return *c.InvertDepth
	}
	return profile.InvertDepth
}

// WithInvertDepth returns a copy with the depth polarity set explicitly.
func (c Config) WithInvertDepth(invert bool) Config {
	c.InvertDepth = &invert
	return c
}

// Registrar builds the ICP registrar these settings describe.
func (c *Config) Registrar() (*pointcloud.ICPRegistrar, error) {
	return pointcloud.NewICPRegistrar(c.ICP.MaxIterations, c.ICP.ConvergenceEpsilon, c.ICP.OutlierDistance, nil)
}
