package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// NearestNeighborIndex answers closest-point queries over a fixed set of points.
// Implementations are read-only after construction and safe for concurrent queries.
type NearestNeighborIndex interface {
	// Nearest returns the index of the closest point to q and the Euclidean
	// distance to it. It returns -1 and +Inf when the index is empty.
	Nearest(q r3.Vector) (int, float64)
	// Len returns the number of indexed points.
	Len() int
}

// IndexBuilder builds a NearestNeighborIndex over a set of points.
type IndexBuilder func(points []r3.Vector) NearestNeighborIndex

// bruteForceLimit is the size below which a linear scan beats building a tree.
const bruteForceLimit = 64

// DefaultIndexBuilder uses a linear scan for small clouds and a k-d tree otherwise.
func DefaultIndexBuilder(points []r3.Vector) NearestNeighborIndex {
	if len(points) < bruteForceLimit {
		return NewBruteForceIndex(points)
	}
	return NewKDTreeIndex(points)
}

// BruteForceIndex scans every point on each query.
type BruteForceIndex struct {
	points []r3.Vector
}

// NewBruteForceIndex indexes points by reference.
func NewBruteForceIndex(points []r3.Vector) NearestNeighborIndex {
	return &BruteForceIndex{points: points}
}

// Nearest returns the closest point, preferring the lowest index on ties.
func (b *BruteForceIndex) Nearest(q r3.Vector) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, p := range b.points {
		if d := p.Sub(q).Norm2(); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return -1, math.Inf(1)
	}
	return best, math.Sqrt(bestDist)
}

// Len returns the number of indexed points.
func (b *BruteForceIndex) Len() int {
	return len(b.points)
}

// KDTreeIndex is a balanced k-d tree over 3D points.
type KDTreeIndex struct {
	tree *kdtree.Tree
	size int
}

// NewKDTreeIndex builds a tree over a copy of points.
func NewKDTreeIndex(points []r3.Vector) NearestNeighborIndex {
	nodes := make(treePoints, len(points))
	for i, p := range points {
		nodes[i] = treePoint{pos: p, index: i}
	}
	return &KDTreeIndex{tree: kdtree.New(nodes, false), size: len(points)}
}

// Nearest returns the closest point and its distance.
func (k *KDTreeIndex) Nearest(q r3.Vector) (int, float64) {
	if k.size == 0 {
		return -1, math.Inf(1)
	}
	got, dist2 := k.tree.Nearest(treePoint{pos: q, index: -1})
	if got == nil {
		return -1, math.Inf(1)
	}
	return got.(treePoint).index, math.Sqrt(dist2)
}

// Len returns the number of indexed points.
func (k *KDTreeIndex) Len() int {
	return k.size
}

// treePoint is a point that remembers its position in the source slice so the
// tree can reorder freely.
type treePoint struct {
	pos   r3.Vector
	index int
}

func (p treePoint) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.pos.X
	case 1:
		return p.pos.Y
	default:
		return p.pos.Z
	}
}

// Compare returns the signed distance of p from the plane through c along d.
func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(treePoint).coord(d)
}

// Dims returns the number of dimensions.
func (p treePoint) Dims() int {
	return 3
}

// Distance returns the squared Euclidean distance, which is what kdtree expects.
func (p treePoint) Distance(c kdtree.Comparable) float64 {
	return p.pos.Sub(c.(treePoint).pos).Norm2()
}

type treePoints []treePoint

func (p treePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p treePoints) Len() int                      { return len(p) }
func (p treePoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p treePoints) Pivot(d kdtree.Dim) int {
	return treePlane{treePoints: p, dim: d}.pivot()
}

// treePlane sorts points along one dimension for median partitioning.
type treePlane struct {
	treePoints
	dim kdtree.Dim
}

func (p treePlane) Less(i, j int) bool {
	return p.treePoints[i].coord(p.dim) < p.treePoints[j].coord(p.dim)
}

func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}

func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	return treePlane{treePoints: p.treePoints[start:end], dim: p.dim}
}

func (p treePlane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
