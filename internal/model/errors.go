package model

import "errors"

var (
	// ErrNotFound signals that a storage reference does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoSamples signals a training attempt with zero valid samples.
	ErrNoSamples = errors.New("no training samples")
	// ErrInvalidImage signals bytes that could not be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
)
