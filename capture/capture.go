// Package capture loads the depth records and color images written by the
// capture app and pairs them into frames.
package capture

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/depthcloud/pointcloud"
	"go.viam.com/depthcloud/rimage"
	"go.viam.com/depthcloud/rimage/transform"
)

// IntrinsicMatrix is the 3x3 intrinsic matrix flattened in storage order. The
// capture app writes it as nested rows; a flat list of nine values is read too.
// It is always written flat.
type IntrinsicMatrix []float64

// UnmarshalJSON accepts either a flat array of numbers or an array of rows.
func (m *IntrinsicMatrix) UnmarshalJSON(data []byte) error {
	var flat []float64
	if err := json.Unmarshal(data, &flat); err == nil {
		*m = flat
		return nil
	}
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.Wrap(err, "intrinsic_matrix must be an array of numbers or of rows")
	}
	flat = make([]float64, 0, 9)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	*m = flat
	return nil
}

// CalibrationData is the calibration block of a depth record.
type CalibrationData struct {
	IntrinsicMatrix IntrinsicMatrix `json:"intrinsic_matrix"`
}

// DepthRecord is one depth capture as stored on disk. The depth data is in sensor
// order and has not been oriented.
type DepthRecord struct {
	CalibrationData CalibrationData `json:"calibration_data"`
	DepthData       [][]float64     `json:"depth_data"`
}

// Intrinsics builds camera intrinsics from the record's matrix.
func (r *DepthRecord) Intrinsics(scale float64) (*transform.CameraIntrinsics, error) {
	return transform.NewCameraIntrinsicsFromMatrix(r.CalibrationData.IntrinsicMatrix, scale)
}

// LoadDepthRecord reads a depth record JSON file.
func LoadDepthRecord(path string) (*DepthRecord, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening depth record")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var record DepthRecord
	if err := json.NewDecoder(f).Decode(&record); err != nil {
		return nil, errors.Wrapf(err, "error parsing depth record %q", path)
	}
	if len(record.DepthData) == 0 {
		return nil, errors.Errorf("depth record %q has no depth_data", path)
	}
	return &record, nil
}

// LoadColorBuffer decodes an image and resamples it to width x height, returning
// its pixels in row-major order to match a depth grid of that size.
func LoadColorBuffer(path string, width, height int) (pointcloud.ColorBuffer, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding color image %q", path)
	}
	return ColorBufferFromImage(img, width, height), nil
}

// ColorBufferFromImage resamples img with a Lanczos filter to width x height and
// flattens it row by row.
func ColorBufferFromImage(img image.Image, width, height int) pointcloud.ColorBuffer {
	var resized *image.NRGBA
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		resized = imaging.Clone(img)
	} else {
		resized = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	buf := make(pointcloud.ColorBuffer, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := resized.PixOffset(x, y)
			px := resized.Pix[i : i+4 : i+4]
			buf = append(buf, color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]})
		}
	}
	return buf
}

// WriteDepthPreview renders the grid as a hue ramp over (minDepth, maxDepth) and
// saves it; the format follows the file extension.
func WriteDepthPreview(grid *rimage.DepthGrid, minDepth, maxDepth float64, path string) error {
	return SaveImage(grid.ToPrettyPicture(minDepth, maxDepth), path)
}

// Frame pairs a color image with the depth record captured alongside it.
type Frame struct {
	ColorPath string
	DepthPath string
}

// ListFrames pairs the files of dir/colorFolder and dir/depthFolder by sorted
// name order. Hidden files are ignored.
func ListFrames(dir, colorFolder, depthFolder string) ([]Frame, error) {
	colors, err := listFiles(filepath.Join(dir, colorFolder))
	if err != nil {
		return nil, err
	}
	depths, err := listFiles(filepath.Join(dir, depthFolder))
	if err != nil {
		return nil, err
	}
	if len(colors) != len(depths) {
		return nil, errors.Errorf("found %d color images but %d depth records in %q", len(colors), len(depths), dir)
	}
	if len(colors) == 0 {
		return nil, errors.Errorf("no frames found in %q", dir)
	}
	frames := make([]Frame, len(colors))
	for i := range colors {
		frames[i] = Frame{ColorPath: colors[i], DepthPath: depths[i]}
	}
	return frames, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing %q", dir)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			return "", false
		}
		return filepath.Join(dir, e.Name()), true
	})
	sort.Strings(files)
	return files, nil
}
