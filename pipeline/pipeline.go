// Package pipeline turns a folder of captured frames into one registered point
// cloud: every frame is unprojected and filtered, every later frame is aligned
// onto the first, and the aligned clouds are merged.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/depthcloud/capture"
	"go.viam.com/depthcloud/config"
	"go.viam.com/depthcloud/logging"
	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
	"go.viam.com/depthcloud/utils"
)

// Frame is one captured view after unprojection and filtering.
type Frame struct {
	Index int
	// Grid is the oriented, possibly inverted, depth grid.
	Grid  *rimage.DepthGrid
	Raw   *pointcloud.RawCloud
	Cloud *pointcloud.PointCloud
}

// Result is the merged reconstruction.
type Result struct {
	// Cloud is the reference frame followed by every aligned frame, voxel
	// downsampled when configured.
	Cloud *pointcloud.PointCloud
	// Alignments holds the registration of frame i+1 onto frame 0.
	Alignments []*pointcloud.AlignmentResult
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProfile replaces the camera profile named by the config.
func WithProfile(profile config.CameraProfile) Option {
	return func(p *Pipeline) {
		p.profile = profile
	}
}

// Pipeline holds the configured stages. It keeps no state between runs and is
// safe for concurrent use.
type Pipeline struct {
	cfg       config.Config
	profile   config.CameraProfile
	filter    *pointcloud.PointCloudFilter
	registrar *pointcloud.ICPRegistrar
	logger    logging.Logger
}

// New validates the config and builds the stages it describes.
func New(cfg config.Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	logger = logging.OrBlank(logger)
	p := &Pipeline{cfg: cfg, profile: profile, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	if p.profile.ImageWidth <= 0 || p.profile.DepthWidth <= 0 || p.profile.DepthHeight <= 0 {
		return nil, utils.NewConfigError("camera profile %q has no resolution", p.profile.Name)
	}

	if p.filter, err = pointcloud.NewPointCloudFilter(cfg.Stride); err != nil {
		return nil, err
	}
	if p.registrar, err = cfg.Registrar(); err != nil {
		return nil, err
	}
	p.registrar.Logger = logger.Sublogger("icp")
	return p, nil
}

// FrameSize is the oriented depth resolution frames are expected to have.
func (p *Pipeline) FrameSize() (int, int) {
	return p.profile.OrientedSize()
}

// BuildFrame unprojects and filters one depth record. A nil color buffer gives
// an uncolored cloud.
func (p *Pipeline) BuildFrame(index int, record *capture.DepthRecord, colors pointcloud.ColorBuffer) (*Frame, error) {
	params, err := record.Intrinsics(p.profile.Scale())
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", index)
	}
	unprojector, err := transform.NewDepthUnprojector(params, p.cfg.MinDepth, p.cfg.MaxDepth, p.cfg.InvertWith(p.profile))
	if err != nil {
		return nil, err
	}
	width, height := p.FrameSize()
	grid, err := unprojector.OrientWithSize(record.DepthData, width, height)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", index)
	}
	raw, err := unprojector.Unproject(grid)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", index)
	}
	cloud, err := p.filter.Apply(raw, colors)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", index)
	}
	p.logger.Debugw("built frame", "frame", index, "valid", raw.ValidCount(), "kept", cloud.Size())
	return &Frame{Index: index, Grid: grid, Raw: raw, Cloud: cloud}, nil
}

// LoadFrame reads a frame's depth record and color image and builds it.
func (p *Pipeline) LoadFrame(index int, f capture.Frame) (*Frame, error) {
	record, err := capture.LoadDepthRecord(f.DepthPath)
	if err != nil {
		return nil, err
	}
	width, height := p.FrameSize()
	colors, err := capture.LoadColorBuffer(f.ColorPath, width, height)
	if err != nil {
		return nil, err
	}
	return p.BuildFrame(index, record, colors)
}

// LoadFrames builds every frame concurrently. The first error cancels the rest.
func (p *Pipeline) LoadFrames(ctx context.Context, files []capture.Frame) ([]*Frame, error) {
	frames := make([]*Frame, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frame, err := p.LoadFrame(i, f)
			if err != nil {
				return err
			}
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// Reconstruct aligns every frame after the first onto the first, concurrently,
// and merges them. Frames that do not converge are kept and logged.
func (p *Pipeline) Reconstruct(ctx context.Context, frames []*Frame) (*Result, error) {
	if len(frames) == 0 {
		return nil, utils.NewInvalidInputError("no frames to reconstruct")
	}
	reference := frames[0].Cloud
	alignments := make([]*pointcloud.AlignmentResult, len(frames)-1)

	g, gctx := errgroup.WithContext(ctx)
	for i, frame := range frames[1:] {
		g.Go(func() error {
			res, err := p.registrar.Align(gctx, frame.Cloud, reference)
			if err != nil {
				return errors.Wrapf(err, "error aligning frame %d", frame.Index)
			}
			p.logger.Infow("aligned frame",
				"frame", frame.Index,
				"converged", res.Converged,
				"iterations", res.IterationsUsed,
				"mse", res.FinalMeanError,
			)
			alignments[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := reference
	for i, res := range alignments {
		aligned, err := pointcloud.New(res.Transform.TransformAll(frames[i+1].Cloud.Points()), frames[i+1].Cloud.Colors())
		if err != nil {
			return nil, err
		}
		merged = merged.Concat(aligned)
	}

	if p.cfg.VoxelSize > 0 {
		downsampled, err := pointcloud.VoxelDownsample(merged, p.cfg.VoxelSize)
		if err != nil {
			return nil, err
		}
		p.logger.Debugw("voxel downsampled", "before", merged.Size(), "after", downsampled.Size())
		merged = downsampled
	}
	return &Result{Cloud: merged, Alignments: alignments}, nil
}

// ListFrames pairs the color and depth files of a dataset folder using the
// configured sub-folder names.
func (p *Pipeline) ListFrames(dir string) ([]capture.Frame, error) {
	files, err := capture.ListFrames(dir, p.cfg.ColorFolder, p.cfg.DepthFolder)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("found frames", "dir", dir, "count", len(files))
	return files, nil
}

// Run lists the frames under dir, builds them, and reconstructs the scene.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Result, []*Frame, error) {
	files, err := p.ListFrames(dir)
	if err != nil {
		return nil, nil, err
	}
	frames, err := p.LoadFrames(ctx, files)
	if err != nil {
		return nil, nil, err
	}
	res, err := p.Reconstruct(ctx, frames)
	if err != nil {
		return nil, nil, err
	}
	return res, frames, nil
}
