package codec

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

type opencvService struct{}

// NewOpenCV decodes with cv::imdecode, so every format OpenCV was built with
// is accepted.
func NewOpenCV() IService {
	return &opencvService{}
}

func (svc *opencvService) Decode(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, xerrors.Errorf("imdecode: %w", err)
	}
	defer mat.Close() // Crucial to close the mat to avoid memory leaks

	if mat.Empty() {
		return nil, xerrors.New("imdecode: not a decodable image")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, xerrors.Errorf("mat to image: %w", err)
	}
	return img, nil
}
