package inference

import "sync"

// FakeService returns canned outputs. It records the inputs it was given.
type FakeService struct {
	mu      sync.Mutex
	outputs []Tensor
	err     error
	calls   int
	last    map[string]Tensor
}

func NewFake(outputs []Tensor, err error) *FakeService {
	return &FakeService{
		outputs: outputs,
		err:     err,
	}
}

func (svc *FakeService) Run(inputs map[string]Tensor) ([]Tensor, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.calls++
	svc.last = inputs
	if svc.err != nil {
		return nil, svc.err
	}
	return svc.outputs, nil
}

func (svc *FakeService) Close() error {
	return nil
}

func (svc *FakeService) Calls() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.calls
}

func (svc *FakeService) LastInputs() map[string]Tensor {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.last
}
