package transform

import (
	"context"
	"math"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/utils"
)

// Unproject converts an oriented depth grid into a raw cloud. A sample d is valid
// when minDepth < d < maxDepth; invalid samples stay in place, tagged invalid, so
// point i keeps matching pixel (i / width, i % width). Rows run in parallel.
func Unproject(grid *rimage.DepthGrid, params *CameraIntrinsics, minDepth, maxDepth float64) (*pointcloud.RawCloud, error) {
	if grid == nil {
		return nil, utils.NewInvalidInputError("no depth grid to unproject")
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if err := checkDepthBounds(minDepth, maxDepth); err != nil {
		return nil, err
	}

	width, height := grid.Width(), grid.Height()
	if len(grid.Data()) != width*height {
		return nil, utils.NewShapeError("depth grid declared %d x %d but has %d samples", width, height, len(grid.Data()))
	}
	raw := pointcloud.NewRawCloud(width, height)
	if err := utils.ParallelForEach(context.Background(), height, func(row int) {
		for col := 0; col < width; col++ {
			d := grid.At(row, col)
			if !(d > minDepth && d < maxDepth) {
				continue
			}
			raw.Points[row*width+col] = pointcloud.GridPoint{
				Position: params.PixelToPoint(float64(col), float64(row), d),
				Valid:    true,
			}
		}
	}); err != nil {
		return nil, err
	}
	return raw, nil
}

func checkDepthBounds(minDepth, maxDepth float64) error {
	if math.IsNaN(minDepth) || math.IsNaN(maxDepth) || minDepth >= maxDepth {
		return utils.NewConfigError("depth bounds (%v, %v) are empty", minDepth, maxDepth)
	}
	return nil
}

// DepthUnprojector turns depth data as stored by the capture device into raw
// clouds: it orients the data into the camera frame, optionally inverts its
// polarity, and unprojects it.
type DepthUnprojector struct {
	Intrinsics *CameraIntrinsics
	MinDepth   float64
	MaxDepth   float64
	Invert     bool
}

// NewDepthUnprojector returns a validated unprojector.
func NewDepthUnprojector(params *CameraIntrinsics, minDepth, maxDepth float64, invert bool) (*DepthUnprojector, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if err := checkDepthBounds(minDepth, maxDepth); err != nil {
		return nil, err
	}
	return &DepthUnprojector{Intrinsics: params, MinDepth: minDepth, MaxDepth: maxDepth, Invert: invert}, nil
}

// Orient applies the sensor orientation correction and, if configured, the depth
// inversion, whose maximum is taken after orientation.
func (u *DepthUnprojector) Orient(raw [][]float64) (*rimage.DepthGrid, error) {
	grid, err := rimage.OrientSensorGrid(raw)
	if err != nil {
		return nil, err
	}
	return u.maybeInvert(grid), nil
}

// OrientWithSize is Orient with a check of the oriented grid against a declared size.
func (u *DepthUnprojector) OrientWithSize(raw [][]float64, width, height int) (*rimage.DepthGrid, error) {
	grid, err := rimage.OrientSensorGridWithSize(raw, width, height)
	if err != nil {
		return nil, err
	}
	return u.maybeInvert(grid), nil
}

func (u *DepthUnprojector) maybeInvert(grid *rimage.DepthGrid) *rimage.DepthGrid {
	if u.Invert {
		return grid.Invert()
	}
	return grid
}

// Unproject unprojects an already oriented grid with the configured bounds.
func (u *DepthUnprojector) Unproject(grid *rimage.DepthGrid) (*pointcloud.RawCloud, error) {
	return Unproject(grid, u.Intrinsics, u.MinDepth, u.MaxDepth)
}

// UnprojectRaw orients, optionally inverts, and unprojects stored depth data.
func (u *DepthUnprojector) UnprojectRaw(raw [][]float64) (*pointcloud.RawCloud, error) {
	grid, err := u.Orient(raw)
	if err != nil {
		return nil, err
	}
	return u.Unproject(grid)
}
