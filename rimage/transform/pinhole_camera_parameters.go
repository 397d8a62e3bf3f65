// Package transform holds the pinhole camera model and the unprojection of depth
// grids into raw point clouds.
package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/depthcloud/utils"
)

// CameraIntrinsics holds the parameters necessary to do a perspective projection of
// a 3D scene to the 2D plane, already scaled to the working depth resolution.
type CameraIntrinsics struct {
	Fx    float64 `json:"fx"`
	Fy    float64 `json:"fy"`
	Ppx   float64 `json:"ppx"`
	Ppy   float64 `json:"ppy"`
	Scale float64 `json:"scale"`
}

// NewCameraIntrinsicsFromMatrix builds intrinsics from a flattened 3x3 matrix as it
// is stored by the capture device. The stored matrix is the transpose of the usual
// camera matrix, so after transposing fx is at (0,0), fy at (1,1), cx at (0,2) and
// cy at (1,2). All four are multiplied by scale, the ratio of the working resolution
// to the calibration resolution.
func NewCameraIntrinsicsFromMatrix(matrix []float64, scale float64) (*CameraIntrinsics, error) {
	if len(matrix) != 9 {
		return nil, utils.NewConfigError("intrinsic matrix has %d values, need exactly 9", len(matrix))
	}
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return nil, utils.NewConfigError("invalid intrinsics scale %v", scale)
	}
	stored := mat.NewDense(3, 3, append([]float64(nil), matrix...))
	k := stored.T()

	params := &CameraIntrinsics{
		Fx:    k.At(0, 0) * scale,
		Fy:    k.At(1, 1) * scale,
		Ppx:   k.At(0, 2) * scale,
		Ppy:   k.At(1, 2) * scale,
		Scale: scale,
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckValid checks if the fields for CameraIntrinsics have valid inputs.
func (params *CameraIntrinsics) CheckValid() error {
	if params == nil {
		return utils.NewConfigError("intrinsics do not exist")
	}
	if !(params.Fx > 0) {
		return utils.NewConfigError("invalid focal length Fx = %#v", params.Fx)
	}
	if !(params.Fy > 0) {
		return utils.NewConfigError("invalid focal length Fy = %#v", params.Fy)
	}
	if math.IsNaN(params.Ppx) || math.IsNaN(params.Ppy) {
		return utils.NewConfigError("invalid principal point (%v, %v)", params.Ppx, params.Ppy)
	}
	return nil
}

// CameraMatrix returns the usual 3x3 camera matrix K.
func (params *CameraIntrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PixelToPoint transforms a pixel (col, row) with depth z to a 3D point in the camera frame.
func (params *CameraIntrinsics) PixelToPoint(col, row, z float64) r3.Vector {
	return r3.Vector{
		X: z * (col - params.Ppx) / params.Fx,
		Y: z * (row - params.Ppy) / params.Fy,
		Z: z,
	}
}

// PointToPixel projects a 3D point to a (col, row) pixel position. Points with
// zero depth map to (-1, -1) so bounds checks drop them.
func (params *CameraIntrinsics) PointToPixel(p r3.Vector) (float64, float64) {
	if p.Z != 0. {
		col := (p.X/p.Z)*params.Fx + params.Ppx
		row := (p.Y/p.Z)*params.Fy + params.Ppy
		return col, row
	}
	return -1.0, -1.0
}
