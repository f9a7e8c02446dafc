package pipeline

import (
	"image"

	"github.com/nfnt/resize"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/inference"
)

// LetterboxGeometry computes where a w×h image lands on a size×size canvas
// when scaled to fit while keeping its aspect ratio.
func LetterboxGeometry(w, h, size int) (nw, nh int, meta model.PreprocessMeta) {
	sx := float64(size) / float64(w)
	sy := float64(size) / float64(h)
	scale := sx
	if sy < sx {
		scale = sy
	}

	nw = int(float64(w) * scale)
	nh = int(float64(h) * scale)
	// The limiting axis always spans the canvas, float error must not cost a pixel.
	if sx <= sy {
		nw = size
	}
	if sy <= sx {
		nh = size
	}
	nw = clampInt(nw, 1, size)
	nh = clampInt(nh, 1, size)

	return nw, nh, model.PreprocessMeta{
		X0:         (size - nw) / 2,
		Y0:         (size - nh) / 2,
		Scale:      scale,
		CanvasSize: size,
		OrigW:      w,
		OrigH:      h,
	}
}

// Letterbox resizes img onto a black size×size canvas and returns it as a
// [1,3,size,size] float32 tensor scaled to [0,1]. Planes are in B,G,R order,
// the channel layout the detection models were exported with.
func Letterbox(img image.Image, size int) (inference.Tensor, model.PreprocessMeta) {
	b := img.Bounds()
	nw, nh, meta := LetterboxGeometry(b.Dx(), b.Dy(), size)

	resized := resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)
	rb := resized.Bounds()

	plane := size * size
	data := make([]float32, 3*plane)

	put := func(x, y int, r, g, bl uint8) {
		idx := (meta.Y0+y)*size + meta.X0 + x
		data[idx] = float32(bl) / 255.0
		data[plane+idx] = float32(g) / 255.0
		data[2*plane+idx] = float32(r) / 255.0
	}

	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < nh && y < rb.Dy(); y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < nw && x < rb.Dx(); x++ {
				p := row[x*4 : x*4+3]
				put(x, y, p[0], p[1], p[2])
			}
		}
	} else {
		for y := 0; y < nh && y < rb.Dy(); y++ {
			for x := 0; x < nw && x < rb.Dx(); x++ {
				r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
				put(x, y, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}

	return inference.Tensor{
		Shape: []int64{1, 3, int64(size), int64(size)},
		Data:  data,
	}, meta
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
