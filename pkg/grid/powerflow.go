package grid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// solveDC computes line active-power flows with the DC approximation:
// B*theta = P over all buses except the slack (first bus of the case),
// flow on line l = (theta_from - theta_to) / x_l. Out-of-service lines
// carry no flow and contribute nothing to B.
//
// A singular susceptance matrix means some bus is electrically separated
// from the slack, i.e. the grid has split into islands.
func solveDC(c *Case, inService []bool, loadP, genP []float64) ([]float64, error) {
	if len(inService) != len(c.Lines) {
		return nil, fmt.Errorf("line status length %d does not match %d lines", len(inService), len(c.Lines))
	}
	if len(loadP) != len(c.Loads) {
		return nil, fmt.Errorf("load injection length %d does not match %d loads", len(loadP), len(c.Loads))
	}
	if len(genP) != len(c.Generators) {
		return nil, fmt.Errorf("generator injection length %d does not match %d generators", len(genP), len(c.Generators))
	}

	idx := c.busIndex()
	n := len(c.Buses)

	// Net injection per bus. The slack absorbs any load/generation mismatch.
	injection := make([]float64, n)
	for i, g := range c.Generators {
		injection[idx[g.Bus]] += genP[i]
	}
	for i, ld := range c.Loads {
		injection[idx[ld.Bus]] -= loadP[i]
	}

	// Reduced susceptance matrix without the slack row/column.
	b := mat.NewDense(n-1, n-1, nil)
	for li, line := range c.Lines {
		if !inService[li] {
			continue
		}
		susceptance := 1.0 / line.Reactance
		f := idx[line.FromBus]
		t := idx[line.ToBus]
		if f > 0 {
			b.Set(f-1, f-1, b.At(f-1, f-1)+susceptance)
		}
		if t > 0 {
			b.Set(t-1, t-1, b.At(t-1, t-1)+susceptance)
		}
		if f > 0 && t > 0 {
			b.Set(f-1, t-1, b.At(f-1, t-1)-susceptance)
			b.Set(t-1, f-1, b.At(t-1, f-1)-susceptance)
		}
	}

	p := mat.NewVecDense(n-1, injection[1:])

	var thetaRed mat.VecDense
	if err := thetaRed.SolveVec(b, p); err != nil {
		return nil, fmt.Errorf("grid is islanded: %w", err)
	}

	theta := make([]float64, n)
	for i := 1; i < n; i++ {
		theta[i] = thetaRed.AtVec(i - 1)
	}

	flows := make([]float64, len(c.Lines))
	for li, line := range c.Lines {
		if !inService[li] {
			continue
		}
		flows[li] = (theta[idx[line.FromBus]] - theta[idx[line.ToBus]]) / line.Reactance
	}
	return flows, nil
}
