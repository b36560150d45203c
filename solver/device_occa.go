//go:build occa

package solver

import (
	"fmt"
	"log"
	"unsafe"

	"github.com/james-bowman/sparse"
	"github.com/notargets/gocca"

	"github.com/notargets/heatdist/utils"
)

const deviceAvailable = true

// deviceBackends are tried in order until one can be created.
var deviceBackends = []string{
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "OpenMP"}`,
	`{"mode": "Serial"}`,
}

// jacobiKernelSource scales the residual by the inverse diagonal, one
// block of rows per outer iteration.
const jacobiKernelSource = `
#define NROWS %d
#define BLOCK 256
@kernel void jacobiScale(const double *diagInv, const double *r, double *z) {
	for (int b = 0; b < (NROWS + BLOCK - 1) / BLOCK; ++b; @outer) {
		for (int t = 0; t < BLOCK; ++t; @inner) {
			const int i = b * BLOCK + t;
			if (i < NROWS) {
				z[i] = diagInv[i] * r[i];
			}
		}
	}
}
`

// DevicePreconditioner applies diagonal scaling on an OCCA device.
type DevicePreconditioner struct {
	device  *gocca.OCCADevice
	kernel  *gocca.OCCAKernel
	diagInv *gocca.OCCAMemory
	r, z    *gocca.OCCAMemory
	n       int
}

func newDevicePreconditioner() (Preconditioner, error) {
	for _, props := range deviceBackends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			log.Printf("Created %s device for preconditioning", device.Mode())
			return &DevicePreconditioner{device: device}, nil
		}
	}
	return nil, fmt.Errorf("%w: no OCCA backend could be created", ErrDeviceUnavailable)
}

func (dp *DevicePreconditioner) SetOperator(A *sparse.CSR) (err error) {
	dp.freeOperator()
	var diagInv []float64
	if diagInv, err = inverseDiagonal(A); err != nil {
		return
	}
	dp.n = len(diagInv)
	if dp.n == 0 {
		return
	}
	bytes := int64(dp.n * 8)
	dp.diagInv = dp.device.Malloc(bytes, unsafe.Pointer(&diagInv[0]), nil)
	dp.r = dp.device.Malloc(bytes, nil, nil)
	dp.z = dp.device.Malloc(bytes, nil, nil)
	src := fmt.Sprintf(jacobiKernelSource, dp.n)
	if dp.kernel, err = dp.device.BuildKernelFromString(src, "jacobiScale", nil); err != nil {
		err = fmt.Errorf("failed to build kernel jacobiScale: %w", err)
	}
	return
}

func (dp *DevicePreconditioner) Mult(r, z []float64) {
	if dp.n == 0 {
		return
	}
	bytes := int64(dp.n * 8)
	dp.r.CopyFrom(unsafe.Pointer(&r[0]), bytes)
	if err := dp.kernel.RunWithArgs(dp.diagInv, dp.r, dp.z); err != nil {
		// fall back to the host so the iteration can continue
		log.Printf("device kernel failed, scaling on host: %v", err)
		d := make([]float64, dp.n)
		dp.diagInv.CopyTo(unsafe.Pointer(&d[0]), bytes)
		for i := range z {
			z[i] = d[i] * r[i]
		}
		return
	}
	dp.device.Finish()
	dp.z.CopyTo(unsafe.Pointer(&z[0]), bytes)
	if utils.IsNan(z) {
		log.Printf("device preconditioner produced NaN")
	}
}

func (dp *DevicePreconditioner) freeOperator() {
	if dp.kernel != nil {
		dp.kernel.Free()
		dp.kernel = nil
	}
	for _, mem := range []*gocca.OCCAMemory{dp.diagInv, dp.r, dp.z} {
		if mem != nil {
			mem.Free()
		}
	}
	dp.diagInv, dp.r, dp.z = nil, nil, nil
}

func (dp *DevicePreconditioner) Release() {
	dp.freeOperator()
	if dp.device != nil {
		dp.device.Free()
		dp.device = nil
	}
}
