//go:build !occa

package solver

const deviceAvailable = false

func newDevicePreconditioner() (Preconditioner, error) {
	return nil, ErrDeviceUnavailable
}
