package cli

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/depthcloud/capture"
	"go.viam.com/depthcloud/config"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/pipeline"
	"go.viam.com/depthcloud/pointcloud"
)

func joinProfiles() string {
	return strings.Join(config.ProfileNames(), ", ")
}

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool(generalFlagDebug) {
		return logging.NewDebugLogger("depthcloud")
	}
	return logging.NewLogger("depthcloud")
}

// settingsFromFlags starts from the config file when one is given, else from the
// defaults, and applies every flag the user set on top. It does not validate.
func settingsFromFlags(c *cli.Context) (config.Config, error) {
	cfg := config.Default("")
	if fn := c.String(generalFlagConfig); fn != "" {
		read, err := config.Read(fn)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *read
	}
	if c.IsSet(captureFlagCameraProfile) {
		cfg.CameraProfile = c.String(captureFlagCameraProfile)
	}
	if c.IsSet(captureFlagColorFolder) {
		cfg.ColorFolder = c.String(captureFlagColorFolder)
	}
	if c.IsSet(captureFlagDepthFolder) {
		cfg.DepthFolder = c.String(captureFlagDepthFolder)
	}
	if c.IsSet(depthFlagMin) {
		cfg.MinDepth = c.Float64(depthFlagMin)
	}
	if c.IsSet(depthFlagMax) {
		cfg.MaxDepth = c.Float64(depthFlagMax)
	}
	if c.IsSet(depthFlagStride) {
		cfg.Stride = c.Int(depthFlagStride)
	}
	if c.IsSet(depthFlagInvert) {
		cfg = cfg.WithInvertDepth(c.Bool(depthFlagInvert))
	}
	if c.IsSet(icpFlagMaxIterations) {
		cfg.ICP.MaxIterations = c.Int(icpFlagMaxIterations)
	}
	if c.IsSet(icpFlagConvergenceEpsilon) {
		cfg.ICP.ConvergenceEpsilon = c.Float64(icpFlagConvergenceEpsilon)
	}
	if c.IsSet(icpFlagOutlierDistance) {
		cfg.ICP.OutlierDistance = c.Float64(icpFlagOutlierDistance)
	}
	if c.IsSet(icpFlagVoxelSize) {
		cfg.VoxelSize = c.Float64(icpFlagVoxelSize)
	}
	return cfg, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// previewPath names the depth preview for frame i next to the output cloud.
func previewPath(out string, i int) string {
	return fmt.Sprintf("%s_depth_%04d.png", strings.TrimSuffix(out, filepath.Ext(out)), i)
}

// ReconstructAction is the corresponding action for 'reconstruct'.
func ReconstructAction(c *cli.Context) error {
	cfg, err := settingsFromFlags(c)
	if err != nil {
		return err
	}
	logger := newLogger(c)
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	dir := filepath.Join(c.String(captureFlagData), c.String(captureFlagImages))
	files, err := p.ListFrames(dir)
	if err != nil {
		return err
	}
	inputs := make([]string, 0, 2*len(files))
	for _, f := range files {
		inputs = append(inputs, f.ColorPath, f.DepthPath)
	}
	if err := checkOutput(c.String(generalFlagOut), inputs...); err != nil {
		return err
	}
	frames, err := p.LoadFrames(ctx, files)
	if err != nil {
		return err
	}
	res, err := p.Reconstruct(ctx, frames)
	if err != nil {
		return err
	}

	for i, a := range res.Alignments {
		if diag := a.NonConvergence(); diag != nil {
			warningf(c.App.ErrWriter, "frame %d: %v", i+1, diag)
		}
	}
	if c.Bool(captureFlagShowDepth) {
		for _, f := range frames {
			if err := capture.WriteDepthPreview(f.Grid, cfg.MinDepth, cfg.MaxDepth, previewPath(c.String(generalFlagOut), f.Index)); err != nil {
				return err
			}
		}
	}
	if fn := c.String(generalFlagPlot); fn != "" && len(res.Alignments) > 0 {
		if err := pipeline.PlotConvergence(res.Alignments, fn); err != nil {
			return err
		}
	}
	if err := pointcloud.WriteCloudFile(res.Cloud, c.String(generalFlagOut)); err != nil {
		return errors.Wrap(err, "error writing merged cloud")
	}
	printf(c.App.Writer, "Merged %d frames into %d points at %s", len(frames), res.Cloud.Size(), c.String(generalFlagOut))
	return nil
}

// UnprojectAction is the corresponding action for 'unproject'.
func UnprojectAction(c *cli.Context) error {
	cfg, err := settingsFromFlags(c)
	if err != nil {
		return err
	}
	if err := checkOutput(c.String(generalFlagOut), c.String(captureFlagDepth)); err != nil {
		return err
	}
	p, err := pipeline.New(cfg, newLogger(c))
	if err != nil {
		return err
	}
	record, err := capture.LoadDepthRecord(c.String(captureFlagDepth))
	if err != nil {
		return err
	}
	var colors pointcloud.ColorBuffer
	if fn := c.String(captureFlagColor); fn != "" {
		width, height := p.FrameSize()
		if colors, err = capture.LoadColorBuffer(fn, width, height); err != nil {
			return err
		}
	}
	frame, err := p.BuildFrame(0, record, colors)
	if err != nil {
		return err
	}
	if c.Bool(captureFlagShowDepth) {
		if err := capture.WriteDepthPreview(frame.Grid, cfg.MinDepth, cfg.MaxDepth, previewPath(c.String(generalFlagOut), 0)); err != nil {
			return err
		}
	}
	if err := pointcloud.WriteCloudFile(frame.Cloud, c.String(generalFlagOut)); err != nil {
		return errors.Wrap(err, "error writing cloud")
	}
	printf(c.App.Writer, "Kept %d of %d valid points at %s", frame.Cloud.Size(), frame.Raw.ValidCount(), c.String(generalFlagOut))
	return nil
}

// RegisterAction is the corresponding action for 'register'.
func RegisterAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("register takes exactly two arguments: <source> <target>")
	}
	if err := checkOutput(c.String(generalFlagOut), c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	cfg, err := settingsFromFlags(c)
	if err != nil {
		return err
	}
	registrar, err := cfg.Registrar()
	if err != nil {
		return err
	}
	registrar.Logger = newLogger(c).Sublogger("icp")

	source, err := pointcloud.ReadCloudFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	target, err := pointcloud.ReadCloudFile(c.Args().Get(1))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	res, err := registrar.Align(ctx, source, target)
	if err != nil {
		return err
	}
	if err := pointcloud.WriteCloudFile(res.Merged, c.String(generalFlagOut)); err != nil {
		return errors.Wrap(err, "error writing merged cloud")
	}
	if fn := c.String(generalFlagPlot); fn != "" {
		if err := pipeline.PlotConvergence([]*pointcloud.AlignmentResult{res}, fn); err != nil {
			return err
		}
	}

	t := res.Transform.Translation()
	printf(c.App.Writer, "Rotation: %.4f degrees", res.Transform.Rotation().Angle()*180/math.Pi)
	printf(c.App.Writer, "Translation: (%.6f, %.6f, %.6f)", t.X, t.Y, t.Z)
	printf(c.App.Writer, "Iterations: %d, mean squared error: %g, state: %s", res.IterationsUsed, res.FinalMeanError, res.FinalState)
	if diag := res.NonConvergence(); diag != nil {
		warningf(c.App.ErrWriter, "%v", diag)
	}
	return nil
}
