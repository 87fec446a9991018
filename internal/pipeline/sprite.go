package pipeline

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
)

// imageOrGap is one sampled sprite cell: a frame or a gap where extraction
// failed.
type imageOrGap struct {
	img image.Image
}

// assembleSprite concatenates the frames horizontally into one image. Gaps
// are padded with transparent filler sized like the nearest preceding
// successful frame (or the first successful frame for leading gaps), so cell
// offsets stay computable from the frame index. At least one frame must be
// non-nil.
func assembleSprite(frames []imageOrGap) image.Image {
	// Resolve the fill dimensions for every cell.
	type cell struct{ w, h int }
	cells := make([]cell, len(frames))

	firstW, firstH := 0, 0
	for _, f := range frames {
		if f.img != nil {
			b := f.img.Bounds()
			firstW, firstH = b.Dx(), b.Dy()
			break
		}
	}

	lastW, lastH := firstW, firstH
	totalW, maxH := 0, 0
	for i, f := range frames {
		if f.img != nil {
			b := f.img.Bounds()
			lastW, lastH = b.Dx(), b.Dy()
		}
		cells[i] = cell{w: lastW, h: lastH}
		totalW += lastW
		if lastH > maxH {
			maxH = lastH
		}
	}

	sheet := image.NewNRGBA(image.Rect(0, 0, totalW, maxH))
	x := 0
	for i, f := range frames {
		if f.img != nil {
			b := f.img.Bounds()
			draw.Draw(sheet, image.Rect(x, 0, x+b.Dx(), b.Dy()), f.img, b.Min, draw.Src)
		}
		x += cells[i].w
	}
	return sheet
}

// encodePNG keeps sprite transparency intact.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
