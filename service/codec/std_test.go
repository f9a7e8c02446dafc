package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestStdDecode(t *testing.T) {
	var pngBuf, jpgBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage(12, 7)); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	if err := jpeg.Encode(&jpgBuf, testImage(12, 7), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "png", data: pngBuf.Bytes()},
		{name: "jpeg", data: jpgBuf.Bytes()},
	}

	svc := NewStd()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := svc.Decode(tc.data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 7 {
				t.Fatalf("unexpected bounds: %v", img.Bounds())
			}
		})
	}
}

func TestStdDecodeRejectsGarbage(t *testing.T) {
	svc := NewStd()
	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		if _, err := svc.Decode(data); err == nil {
			t.Fatalf("expected error for %q", data)
		}
	}
}
