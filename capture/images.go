package capture

import (
	"bufio"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
)

// SaveImage writes img to path, choosing the encoder from the extension. PPM and
// QOI are handled here; everything else goes through imaging. Both extra formats
// are also registered for decoding, so LoadColorBuffer reads them too.
func SaveImage(img image.Image, path string) (err error) {
	var encode func(*bufio.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm":
		// ppm only encodes the RGBA color model
		encode = func(w *bufio.Writer, img image.Image) error {
			rgba := image.NewRGBA(img.Bounds())
			draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
			return ppm.Encode(w, rgba)
		}
	case ".qoi":
		encode = func(w *bufio.Writer, img image.Image) error { return qoi.Encode(w, img) }
	default:
		return imaging.Save(img, path)
	}

	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := encode(w, img); err != nil {
		return err
	}
	return w.Flush()
}
