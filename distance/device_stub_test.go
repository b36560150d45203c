//go:build !occa

package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/heatdist/fem"
	"github.com/notargets/heatdist/mesh"
	"github.com/notargets/heatdist/solver"
)

func TestDevicePreconditionerUnavailable(t *testing.T) {
	m, err := mesh.NewLineMesh(4, 0, 1)
	require.NoError(t, err)
	sp, err := fem.NewH1Space(m, 1, nil)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Preconditioner = solver.Device
	s, err := NewSolver(sp, cfg)
	assert.ErrorIs(t, err, solver.ErrDeviceUnavailable)
	assert.Nil(t, s)
}
