package grid

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bus is a node of the transmission network.
type Bus struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Line is a transmission line between two buses. Reactance is in per-unit,
// ThermalLimit in MW.
type Line struct {
	Name         string  `json:"name"`
	FromBus      int     `json:"from_bus"`
	ToBus        int     `json:"to_bus"`
	Reactance    float64 `json:"reactance"`
	ThermalLimit float64 `json:"thermal_limit"`
}

// Load is a consumption point attached to a bus. The chronics provide its
// active power per step; P here is only the nominal value.
type Load struct {
	Name string  `json:"name"`
	Bus  int     `json:"bus"`
	P    float64 `json:"p"`
}

// Generator is a production unit attached to a bus.
type Generator struct {
	Name string  `json:"name"`
	Bus  int     `json:"bus"`
	PMax float64 `json:"p_max"`
}

// Case describes a static grid: topology, line ratings and the injection
// points the chronics feed.
type Case struct {
	Name       string      `json:"name"`
	Buses      []Bus       `json:"buses"`
	Lines      []Line      `json:"lines"`
	Loads      []Load      `json:"loads"`
	Generators []Generator `json:"generators"`
}

// LoadCase reads a grid case from a JSON file.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse case file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid case %q: %w", c.Name, err)
	}
	return &c, nil
}

// Validate checks referential integrity of the case.
func (c *Case) Validate() error {
	if len(c.Buses) < 2 {
		return fmt.Errorf("case needs at least 2 buses, got %d", len(c.Buses))
	}
	if len(c.Lines) == 0 {
		return fmt.Errorf("case has no lines")
	}

	busSet := make(map[int]bool, len(c.Buses))
	for _, b := range c.Buses {
		if busSet[b.ID] {
			return fmt.Errorf("duplicate bus id %d", b.ID)
		}
		busSet[b.ID] = true
	}

	for _, l := range c.Lines {
		if !busSet[l.FromBus] || !busSet[l.ToBus] {
			return fmt.Errorf("line %q references unknown bus", l.Name)
		}
		if l.Reactance <= 0 {
			return fmt.Errorf("line %q has non-positive reactance", l.Name)
		}
		if l.ThermalLimit <= 0 {
			return fmt.Errorf("line %q has non-positive thermal limit", l.Name)
		}
	}
	for _, ld := range c.Loads {
		if !busSet[ld.Bus] {
			return fmt.Errorf("load %q references unknown bus %d", ld.Name, ld.Bus)
		}
	}
	for _, g := range c.Generators {
		if !busSet[g.Bus] {
			return fmt.Errorf("generator %q references unknown bus %d", g.Name, g.Bus)
		}
	}
	return nil
}

// busIndex maps bus IDs to dense indices for the flow solver.
func (c *Case) busIndex() map[int]int {
	idx := make(map[int]int, len(c.Buses))
	for i, b := range c.Buses {
		idx[b.ID] = i
	}
	return idx
}

// DefaultCase returns a built-in 14-bus case loosely modeled on the IEEE
// 14-bus system, used by the demo and the tests.
func DefaultCase() *Case {
	buses := make([]Bus, 14)
	for i := range buses {
		buses[i] = Bus{ID: i, Name: fmt.Sprintf("bus_%d", i)}
	}
	return &Case{
		Name:  "case14",
		Buses: buses,
		Lines: []Line{
			{Name: "0_1", FromBus: 0, ToBus: 1, Reactance: 0.0592, ThermalLimit: 160},
			{Name: "0_4", FromBus: 0, ToBus: 4, Reactance: 0.2230, ThermalLimit: 80},
			{Name: "1_2", FromBus: 1, ToBus: 2, Reactance: 0.1980, ThermalLimit: 80},
			{Name: "1_3", FromBus: 1, ToBus: 3, Reactance: 0.1763, ThermalLimit: 70},
			{Name: "1_4", FromBus: 1, ToBus: 4, Reactance: 0.1739, ThermalLimit: 70},
			{Name: "2_3", FromBus: 2, ToBus: 3, Reactance: 0.1710, ThermalLimit: 70},
			{Name: "3_4", FromBus: 3, ToBus: 4, Reactance: 0.0421, ThermalLimit: 90},
			{Name: "3_6", FromBus: 3, ToBus: 6, Reactance: 0.2091, ThermalLimit: 60},
			{Name: "3_8", FromBus: 3, ToBus: 8, Reactance: 0.5562, ThermalLimit: 40},
			{Name: "4_5", FromBus: 4, ToBus: 5, Reactance: 0.2520, ThermalLimit: 60},
			{Name: "5_10", FromBus: 5, ToBus: 10, Reactance: 0.1989, ThermalLimit: 40},
			{Name: "5_11", FromBus: 5, ToBus: 11, Reactance: 0.2558, ThermalLimit: 40},
			{Name: "5_12", FromBus: 5, ToBus: 12, Reactance: 0.1303, ThermalLimit: 40},
			{Name: "6_7", FromBus: 6, ToBus: 7, Reactance: 0.1762, ThermalLimit: 50},
			{Name: "6_8", FromBus: 6, ToBus: 8, Reactance: 0.1100, ThermalLimit: 50},
			{Name: "8_9", FromBus: 8, ToBus: 9, Reactance: 0.0845, ThermalLimit: 40},
			{Name: "8_13", FromBus: 8, ToBus: 13, Reactance: 0.2704, ThermalLimit: 40},
			{Name: "9_10", FromBus: 9, ToBus: 10, Reactance: 0.1921, ThermalLimit: 30},
			{Name: "11_12", FromBus: 11, ToBus: 12, Reactance: 0.1999, ThermalLimit: 30},
			{Name: "12_13", FromBus: 12, ToBus: 13, Reactance: 0.3480, ThermalLimit: 30},
		},
		Loads: []Load{
			{Name: "load_1", Bus: 1, P: 21.7},
			{Name: "load_2", Bus: 2, P: 94.2},
			{Name: "load_3", Bus: 3, P: 47.8},
			{Name: "load_4", Bus: 4, P: 7.6},
			{Name: "load_5", Bus: 5, P: 11.2},
			{Name: "load_8", Bus: 8, P: 29.5},
			{Name: "load_9", Bus: 9, P: 9.0},
			{Name: "load_10", Bus: 10, P: 3.5},
			{Name: "load_11", Bus: 11, P: 6.1},
			{Name: "load_12", Bus: 12, P: 13.5},
			{Name: "load_13", Bus: 13, P: 14.9},
		},
		Generators: []Generator{
			{Name: "gen_0", Bus: 0, PMax: 200},
			{Name: "gen_1", Bus: 1, PMax: 80},
			{Name: "gen_2", Bus: 2, PMax: 60},
			{Name: "gen_5", Bus: 5, PMax: 60},
			{Name: "gen_7", Bus: 7, PMax: 50},
		},
	}
}
