package config

import (
	"sort"

	"github.com/samber/lo"

	"go.viam.com/depthcloud/utils"
)

// CameraProfile describes the color and depth resolutions of a capture device.
// Depth sizes are as the sensor stores them, before orientation.
type CameraProfile struct {
	Name        string
	ImageWidth  int
	ImageHeight int
	DepthWidth  int
	DepthHeight int
	InvertDepth bool
}

// Scale is the ratio of depth resolution to calibration resolution, applied to
// the intrinsics.
func (p CameraProfile) Scale() float64 {
	return float64(p.DepthWidth) / float64(p.ImageWidth)
}

// OrientedSize is the width and height of a depth grid after orientation, which
// is also the resolution color images are resampled to.
func (p CameraProfile) OrientedSize() (int, int) {
	return p.DepthHeight, p.DepthWidth
}

var profiles = map[string]CameraProfile{
	"iphone10": {Name: "iphone10", ImageWidth: 4032, ImageHeight: 3024, DepthWidth: 768, DepthHeight: 576},
	"iphone12": {Name: "iphone12", ImageWidth: 2049, ImageHeight: 1537, DepthWidth: 768, DepthHeight: 576, InvertDepth: true},
	"iphone13": {Name: "iphone13", ImageWidth: 4032, ImageHeight: 3024, DepthWidth: 768, DepthHeight: 576},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (CameraProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return CameraProfile{}, utils.NewConfigError("unknown camera profile %q, expected one of %v", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the known profiles in sorted order.
func ProfileNames() []string {
	names := lo.Keys(profiles)
	sort.Strings(names)
	return names
}
