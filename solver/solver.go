// Package solver holds the preconditioned conjugate gradient solver, a
// smoothed aggregation algebraic multigrid preconditioner, a damped Jacobi
// smoother, and the selection between the CPU and device preconditioners.
package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/james-bowman/sparse"
)

var (
	ErrNotConverged      = errors.New("solver did not converge")
	ErrIndefinite        = errors.New("operator or preconditioner is not positive definite")
	ErrDeviceUnavailable = errors.New("device preconditioner not compiled into this build, rebuild with -tags occa")
)

// Preconditioner approximates the inverse of the operator it is bound to.
type Preconditioner interface {
	SetOperator(A *sparse.CSR) error
	// Mult computes z = M^-1 r.
	Mult(r, z []float64)
	// Release frees resources held for the bound operator.
	Release()
}

type PreconditionerType uint8

const (
	AMG PreconditionerType = iota
	Device
)

func (pt PreconditionerType) String() string {
	switch pt {
	case AMG:
		return "AMG"
	case Device:
		return "Device"
	default:
		return fmt.Sprintf("PreconditionerType(%d)", int(pt))
	}
}

// ParsePreconditionerType accepts the names printed by String, case
// insensitively. An empty name selects AMG.
func ParsePreconditionerType(name string) (pt PreconditionerType, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "amg":
		pt = AMG
	case "device", "gpu", "occa":
		pt = Device
	default:
		err = fmt.Errorf("unknown preconditioner %q, use AMG or Device", name)
	}
	return
}

// CheckAvailable reports whether a preconditioner type can be built.
func CheckAvailable(pt PreconditionerType) error {
	switch pt {
	case AMG:
		return nil
	case Device:
		if !deviceAvailable {
			return ErrDeviceUnavailable
		}
		return nil
	default:
		return fmt.Errorf("unknown preconditioner type %d", int(pt))
	}
}

// NewPreconditioner returns an unbound preconditioner of the given type.
func NewPreconditioner(pt PreconditionerType) (Preconditioner, error) {
	if err := CheckAvailable(pt); err != nil {
		return nil, err
	}
	if pt == Device {
		return newDevicePreconditioner()
	}
	return NewAMGPreconditioner(), nil
}
