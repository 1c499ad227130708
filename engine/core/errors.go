package core

import (
	"errors"
)

var (
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrDeviceLost         = errors.New("device lost")
	ErrTimeout            = errors.New("timeout expired")
	ErrUnsupported        = errors.New("operation not supported by the device")
	ErrOutOfPoolMemory    = errors.New("descriptor pool exhausted")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnknown            = errors.New("unknown")
)
