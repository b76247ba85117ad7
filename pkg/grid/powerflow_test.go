package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allInService(n int) []bool {
	s := make([]bool, n)
	for i := range s {
		s[i] = true
	}
	return s
}

func nominalInjections(c *Case) (loadP, genP []float64) {
	loadP = make([]float64, len(c.Loads))
	var total float64
	for i, ld := range c.Loads {
		loadP[i] = ld.P
		total += ld.P
	}

	var totalPMax float64
	for _, g := range c.Generators {
		totalPMax += g.PMax
	}
	genP = make([]float64, len(c.Generators))
	for i, g := range c.Generators {
		genP[i] = total * g.PMax / totalPMax
	}
	return loadP, genP
}

func TestSolveDCBalancesAtEveryBus(t *testing.T) {
	c := DefaultCase()
	loadP, genP := nominalInjections(c)

	flows, err := solveDC(c, allInService(len(c.Lines)), loadP, genP)
	require.NoError(t, err)
	require.Len(t, flows, len(c.Lines))

	// Kirchhoff: at every bus, net injection equals net line outflow.
	idx := c.busIndex()
	netOut := make([]float64, len(c.Buses))
	for li, line := range c.Lines {
		netOut[idx[line.FromBus]] += flows[li]
		netOut[idx[line.ToBus]] -= flows[li]
	}

	injection := make([]float64, len(c.Buses))
	for i, g := range c.Generators {
		injection[idx[g.Bus]] += genP[i]
	}
	for i, ld := range c.Loads {
		injection[idx[ld.Bus]] -= loadP[i]
	}

	for b := range c.Buses {
		assert.InDelta(t, injection[b], netOut[b], 1e-9, "bus %d", b)
	}
}

func TestSolveDCDetectsIslanding(t *testing.T) {
	c := DefaultCase()
	loadP, genP := nominalInjections(c)

	// Disconnect every line touching bus 13 to island it.
	status := allInService(len(c.Lines))
	for li, line := range c.Lines {
		if line.FromBus == 13 || line.ToBus == 13 {
			status[li] = false
		}
	}

	_, err := solveDC(c, status, loadP, genP)
	assert.Error(t, err)
}

func TestSolveDCNoFlowOnOpenLines(t *testing.T) {
	c := DefaultCase()
	loadP, genP := nominalInjections(c)

	status := allInService(len(c.Lines))
	status[1] = false // 0_4, bus 4 stays fed through 1_4 and 3_4

	flows, err := solveDC(c, status, loadP, genP)
	require.NoError(t, err)
	assert.Zero(t, flows[1])
}

func TestSolveDCRejectsMismatchedInputs(t *testing.T) {
	c := DefaultCase()
	loadP, genP := nominalInjections(c)

	_, err := solveDC(c, allInService(3), loadP, genP)
	assert.Error(t, err)

	_, err = solveDC(c, allInService(len(c.Lines)), loadP[:2], genP)
	assert.Error(t, err)

	_, err = solveDC(c, allInService(len(c.Lines)), loadP, genP[:1])
	assert.Error(t, err)
}

func TestFlowScalesWithLoad(t *testing.T) {
	c := DefaultCase()
	loadP, genP := nominalInjections(c)

	base, err := solveDC(c, allInService(len(c.Lines)), loadP, genP)
	require.NoError(t, err)

	doubledLoad := make([]float64, len(loadP))
	doubledGen := make([]float64, len(genP))
	for i := range loadP {
		doubledLoad[i] = 2 * loadP[i]
	}
	for i := range genP {
		doubledGen[i] = 2 * genP[i]
	}

	doubled, err := solveDC(c, allInService(len(c.Lines)), doubledLoad, doubledGen)
	require.NoError(t, err)

	// DC flow is linear in the injections.
	for li := range base {
		assert.InDelta(t, 2*base[li], doubled[li], math.Abs(base[li])*1e-9+1e-9)
	}
}
