package dataset

import (
	"bufio"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage decodes a PNG, JPEG, GIF, TIFF, BMP or WebP file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open image %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decode image %s", path)
	}
	return img, nil
}

// SaveImage writes img as PNG, creating parent directories as needed.
func SaveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create output dir for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}

	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		f.Close()
		return eris.Wrapf(err, "dataset: encode %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return eris.Wrapf(err, "dataset: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}
