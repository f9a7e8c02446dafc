package codec

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

type stdService struct{}

// NewStd decodes JPEG, PNG, GIF, BMP and WebP without cgo.
func NewStd() IService {
	return &stdService{}
}

func (svc *stdService) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, xerrors.New("empty image payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, xerrors.Errorf("decode image: empty bounds %v", b)
	}
	return img, nil
}
