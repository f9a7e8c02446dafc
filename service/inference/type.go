package inference

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the number of values the shape describes.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// IService is a loaded detection model. Implementations must be safe for
// concurrent Run calls.
type IService interface {
	// Run feeds the named input tensors to the model and returns its raw
	// output tensors in model output order.
	Run(inputs map[string]Tensor) ([]Tensor, error)
	Close() error
}
