package fetch

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	_ "image/gif"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// writeImage decodes body, applies EXIF orientation, upscales and writes a JPEG to dest
func (f *Fetcher) writeImage(body io.Reader, dest string) (int64, error) {
	limit := f.config.MaxImageBytes
	if limit <= 0 {
		limit = DefaultConfig().MaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return 0, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return 0, fmt.Errorf("image exceeds %d bytes", limit)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}
	if f.config.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > f.config.MaxPixels {
		return 0, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, f.config.MaxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	img := toRGBA(src)
	if format == "jpeg" {
		img = applyOrientation(img, readOrientation(data))
	}
	img = Upscale(img, f.config.MinLongEdge)

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	counter := &countingWriter{w: out}
	if err := jpeg.Encode(counter, img, &jpeg.Options{Quality: f.config.JPEGQuality}); err != nil {
		return counter.n, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := out.Sync(); err != nil {
		return counter.n, fmt.Errorf("failed to sync file: %w", err)
	}
	return counter.n, nil
}

// Upscale returns img enlarged with Catmull-Rom resampling so its longest
// edge is at least minLongEdge, preserving aspect ratio. Images already at
// or above the threshold are returned unchanged.
func Upscale(img *image.RGBA, minLongEdge int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if minLongEdge <= 0 || long == 0 || long >= minLongEdge {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = minLongEdge
		nh = max(1, (h*minLongEdge+w/2)/w)
	} else {
		nh = minLongEdge
		nw = max(1, (w*minLongEdge+h/2)/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// toRGBA converts any decoded image to the RGBA color model at origin 0,0
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// readOrientation returns the EXIF orientation tag, or 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation rotates and flips img so it displays upright for the given EXIF orientation
func applyOrientation(img *image.RGBA, orientation int) *image.RGBA {
	if orientation < 2 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.SetRGBA(dx, dy, img.RGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
