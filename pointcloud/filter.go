package pointcloud

import (
	"github.com/golang/geo/r3"

	"go.viam.com/depthcloud/utils"
)

// PointCloudFilter decimates and compacts raw clouds with a fixed stride.
type PointCloudFilter struct {
	Stride int
}

// NewPointCloudFilter returns a filter keeping every stride-th row and column.
func NewPointCloudFilter(stride int) (*PointCloudFilter, error) {
	if stride < 1 {
		return nil, utils.NewConfigError("stride must be at least 1, got %d", stride)
	}
	return &PointCloudFilter{Stride: stride}, nil
}

// Apply runs Filter with the configured stride over the raw cloud's own grid size.
func (f *PointCloudFilter) Apply(raw *RawCloud, colors ColorBuffer) (*PointCloud, error) {
	if raw == nil {
		return nil, utils.NewInvalidInputError("no raw cloud to filter")
	}
	return Filter(raw, colors, raw.Width, raw.Height, f.Stride)
}

// Filter keeps only the rows and columns of the width x height grid at multiples
// of stride, then drops invalid cells. Points and colors are kept in lock-step so
// the result has one color per point, in the original relative order. A nil color
// buffer produces an uncolored cloud. Neither input is modified.
func Filter(raw *RawCloud, colors ColorBuffer, width, height, stride int) (*PointCloud, error) {
	if raw == nil || raw.Len() == 0 {
		return nil, utils.NewInvalidInputError("no raw cloud to filter")
	}
	if stride < 1 {
		return nil, utils.NewConfigError("stride must be at least 1, got %d", stride)
	}
	if width < 1 || height < 1 || raw.Len() != width*height {
		return nil, utils.NewConfigError("raw cloud has %d points, expected %d x %d", raw.Len(), width, height)
	}
	if colors != nil && len(colors) != width*height {
		return nil, utils.NewConfigError("color buffer has %d entries, expected %d x %d", len(colors), width, height)
	}

	keptRows := (height + stride - 1) / stride
	keptCols := (width + stride - 1) / stride
	points := make([]r3.Vector, 0, keptRows*keptCols)
	var kept ColorBuffer
	if colors != nil {
		kept = make(ColorBuffer, 0, keptRows*keptCols)
	}

	for r := 0; r < height; r += stride {
		for c := 0; c < width; c += stride {
			i := r*width + c
			p := raw.Points[i]
			if !p.Valid {
				continue
			}
			points = append(points, p.Position)
			if colors != nil {
				kept = append(kept, colors[i])
			}
		}
	}
	return New(points, kept)
}
