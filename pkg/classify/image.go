package classify

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/spideyz0r/clipring/pkg/storage"
)

// ThumbnailEdge is the default longest edge of a thumbnail in pixels.
const ThumbnailEdge = 100

func (c *Classifier) classifyImage(data []byte) (*storage.Entry, Skip) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, SkipBadImage
	}

	edge := c.ThumbnailEdge
	if edge <= 0 {
		edge = ThumbnailEdge
	}
	thumb, err := Thumbnail(img, edge)
	if err != nil {
		return nil, SkipBadImage
	}

	b := img.Bounds()
	return &storage.Entry{
		Kind:      storage.KindImage,
		Content:   fmt.Sprintf("Image %dx%d", b.Dx(), b.Dy()),
		Binary:    data,
		Thumbnail: thumb,
	}, SkipNone
}

// Thumbnail scales img so its longer edge is at most edge pixels, keeping
// the aspect ratio, and encodes the result as PNG. Smaller images are
// encoded unscaled.
func Thumbnail(img image.Image, edge int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	tw, th := w, h
	if w > edge || h > edge {
		if w >= h {
			tw, th = edge, max(1, h*edge/w)
		} else {
			tw, th = max(1, w*edge/h), edge
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
