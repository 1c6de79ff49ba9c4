//go:build !linux

package rt

import "errors"

const DefaultPriority = 50

var errUnsupported = errors.New("rt: real-time scheduling not supported on this platform")

func PinTickThread(priority int) error { return errUnsupported }

func LockMemory() error { return errUnsupported }
