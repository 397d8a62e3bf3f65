package pointcloud

import (
	"image/color"
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"go.viam.com/depthcloud/utils"
)

// VoxelCoords stores Voxel coordinates in VoxelGrid axes.
type VoxelCoords struct {
	I, J, K int64
}

// Voxel accumulates the points and colors falling in one grid cell.
type Voxel struct {
	Key    VoxelCoords
	Center r3.Vector
	Color  color.NRGBA
	Count  int

	sum                    r3.Vector
	sumR, sumG, sumB, sumA int
}

func (v *Voxel) add(p r3.Vector, c color.NRGBA) {
	v.Count++
	v.sum = v.sum.Add(p)
	v.sumR += int(c.R)
	v.sumG += int(c.G)
	v.sumB += int(c.B)
	v.sumA += int(c.A)
}

func (v *Voxel) finish() {
	n := v.Count
	v.Center = v.sum.Mul(1 / float64(n))
	v.Color = color.NRGBA{
		R: uint8(v.sumR / n),
		G: uint8(v.sumG / n),
		B: uint8(v.sumB / n),
		A: uint8(v.sumA / n),
	}
}

// VoxelGrid partitions a cloud into cubic cells of side VoxelSize.
type VoxelGrid struct {
	Voxels    map[VoxelCoords]*Voxel
	VoxelSize float64
	origin    r3.Vector
}

// GetVoxelCoordinates computes the voxel coordinates of pt relative to the grid origin.
func GetVoxelCoordinates(pt, origin r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor((pt.X - origin.X) / voxelSize)),
		J: int64(math.Floor((pt.Y - origin.Y) / voxelSize)),
		K: int64(math.Floor((pt.Z - origin.Z) / voxelSize)),
	}
}

// NewVoxelGridFromPointCloud bins every point of the cloud, with the grid anchored
// at the cloud's minimum corner.
func NewVoxelGridFromPointCloud(cloud *PointCloud, voxelSize float64) (*VoxelGrid, error) {
	if !(voxelSize > 0) {
		return nil, utils.NewConfigError("voxel size must be positive, got %v", voxelSize)
	}
	meta := cloud.MetaData()
	grid := &VoxelGrid{
		Voxels:    make(map[VoxelCoords]*Voxel),
		VoxelSize: voxelSize,
		origin:    r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ},
	}
	for i := 0; i < cloud.Size(); i++ {
		p, c := cloud.At(i)
		key := GetVoxelCoordinates(p, grid.origin, voxelSize)
		vox, ok := grid.Voxels[key]
		if !ok {
			vox = &Voxel{Key: key}
			grid.Voxels[key] = vox
		}
		vox.add(p, c)
	}
	for _, vox := range grid.Voxels {
		vox.finish()
	}
	return grid, nil
}

// Keys returns the occupied voxel coordinates in I, J, K order.
func (vg *VoxelGrid) Keys() []VoxelCoords {
	keys := make([]VoxelCoords, 0, len(vg.Voxels))
	for k := range vg.Voxels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		ka, kb := keys[a], keys[b]
		if ka.I != kb.I {
			return ka.I < kb.I
		}
		if ka.J != kb.J {
			return ka.J < kb.J
		}
		return ka.K < kb.K
	})
	return keys
}

// ToPointCloud returns one point per occupied voxel at the centroid of its points,
// colored with their mean color, in key order.
func (vg *VoxelGrid) ToPointCloud(hasColor bool) (*PointCloud, error) {
	keys := vg.Keys()
	points := make([]r3.Vector, len(keys))
	colors := make(ColorBuffer, len(keys))
	for i, k := range keys {
		points[i] = vg.Voxels[k].Center
		colors[i] = vg.Voxels[k].Color
	}
	if !hasColor {
		colors = nil
	}
	return New(points, colors)
}

// VoxelDownsample reduces the cloud to one point per occupied voxel of side voxelSize.
func VoxelDownsample(cloud *PointCloud, voxelSize float64) (*PointCloud, error) {
	if cloud.Size() == 0 {
		return NewEmpty(), nil
	}
	grid, err := NewVoxelGridFromPointCloud(cloud, voxelSize)
	if err != nil {
		return nil, err
	}
	return grid.ToPointCloud(cloud.MetaData().HasColor)
}
