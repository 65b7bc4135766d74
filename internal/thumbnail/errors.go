package thumbnail

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("thumbnail not found")
	ErrQueueFull         = errors.New("generation queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)
