package grid

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

const (
	loadFileName = "load_p.csv"
	prodFileName = "prod_p.csv"

	// Disk reads never fetch fewer rows than this, whatever the caller asks.
	minChunkSize = 100
)

// Provider supplies named injection time series ("chronics") that the
// environment replays as episodes.
type Provider interface {
	// Count returns the number of distinct chronics.
	Count() int
	// Shuffle randomly permutes the replay order of the chronics.
	Shuffle()
	// Next opens the next chronic in the current order, wrapping around.
	Next() (Episode, error)
	// SetChunkSize sets how many rows are loaded from disk per read.
	SetChunkSize(n int)
}

// Episode is one chronic being replayed step by step.
type Episode interface {
	Name() string
	// Step returns the load and generator injections for the next
	// timestep, or io.EOF once the chronic is exhausted.
	Step() (loadP, genP []float64, err error)
	Close() error
}

// DiskChronics replays chronics stored on disk. The root directory holds
// one subdirectory per chronic, each with load_p.csv and prod_p.csv whose
// columns are named after the case's loads and generators.
type DiskChronics struct {
	c         *Case
	root      string
	subpaths  []string
	cursor    int
	chunkSize int
	rng       *rand.Rand
}

// NewDiskChronics scans root for chronic subdirectories.
func NewDiskChronics(c *Case, root string, rng *rand.Rand) (*DiskChronics, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read chronics directory: %w", err)
	}

	var subpaths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, loadFileName)); err != nil {
			continue
		}
		subpaths = append(subpaths, dir)
	}
	if len(subpaths) == 0 {
		return nil, fmt.Errorf("no chronics found under %s", root)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &DiskChronics{
		c:         c,
		root:      root,
		subpaths:  subpaths,
		chunkSize: minChunkSize,
		rng:       rng,
	}, nil
}

func (d *DiskChronics) Count() int {
	return len(d.subpaths)
}

func (d *DiskChronics) Shuffle() {
	d.rng.Shuffle(len(d.subpaths), func(i, j int) {
		d.subpaths[i], d.subpaths[j] = d.subpaths[j], d.subpaths[i]
	})
}

func (d *DiskChronics) SetChunkSize(n int) {
	if n < minChunkSize {
		n = minChunkSize
	}
	d.chunkSize = n
}

func (d *DiskChronics) Next() (Episode, error) {
	dir := d.subpaths[d.cursor%len(d.subpaths)]
	d.cursor++

	ep := &diskEpisode{
		name:      filepath.Base(dir),
		chunkSize: d.chunkSize,
	}

	var err error
	ep.loadReader, ep.loadClose, err = openSeries(filepath.Join(dir, loadFileName), loadNames(d.c))
	if err != nil {
		return nil, err
	}
	ep.prodReader, ep.prodClose, err = openSeries(filepath.Join(dir, prodFileName), genNames(d.c))
	if err != nil {
		ep.loadClose()
		return nil, err
	}
	return ep, nil
}

func loadNames(c *Case) []string {
	names := make([]string, len(c.Loads))
	for i, ld := range c.Loads {
		names[i] = ld.Name
	}
	return names
}

func genNames(c *Case) []string {
	names := make([]string, len(c.Generators))
	for i, g := range c.Generators {
		names[i] = g.Name
	}
	return names
}

// seriesReader reads one CSV time series in chunks, reordering columns to
// match the case's component order.
type seriesReader struct {
	csv     *csv.Reader
	columns []int // case position -> csv column
}

func openSeries(path string, names []string) (*seriesReader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open chronic file: %w", err)
	}

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[h] = i
	}

	columns := make([]int, len(names))
	for i, name := range names {
		col, ok := byName[name]
		if !ok {
			f.Close()
			return nil, nil, fmt.Errorf("chronic %s is missing column %q", path, name)
		}
		columns[i] = col
	}
	return &seriesReader{csv: r, columns: columns}, f.Close, nil
}

// readChunk pulls up to n rows, already reordered to case order.
func (s *seriesReader) readChunk(n int) ([][]float64, error) {
	rows := make([][]float64, 0, n)
	for len(rows) < n {
		record, err := s.csv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chronic row: %w", err)
		}

		row := make([]float64, len(s.columns))
		for i, col := range s.columns {
			v, err := strconv.ParseFloat(record[col], 64)
			if err != nil {
				return nil, fmt.Errorf("bad value %q in chronic: %w", record[col], err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type diskEpisode struct {
	name      string
	chunkSize int

	loadReader *seriesReader
	prodReader *seriesReader
	loadClose  func() error
	prodClose  func() error

	loadRows [][]float64
	prodRows [][]float64
	pos      int
}

func (e *diskEpisode) Name() string {
	return e.name
}

func (e *diskEpisode) Step() ([]float64, []float64, error) {
	if e.pos >= len(e.loadRows) {
		var err error
		e.loadRows, err = e.loadReader.readChunk(e.chunkSize)
		if err != nil {
			return nil, nil, err
		}
		e.prodRows, err = e.prodReader.readChunk(e.chunkSize)
		if err != nil {
			return nil, nil, err
		}
		e.pos = 0
		if len(e.loadRows) == 0 || len(e.prodRows) == 0 {
			return nil, nil, io.EOF
		}
	}
	if e.pos >= len(e.prodRows) {
		return nil, nil, io.EOF
	}

	loadP := e.loadRows[e.pos]
	genP := e.prodRows[e.pos]
	e.pos++
	return loadP, genP, nil
}

func (e *diskEpisode) Close() error {
	err := e.loadClose()
	if cerr := e.prodClose(); err == nil {
		err = cerr
	}
	return err
}

// SyntheticChronics generates injection profiles in memory. Loads follow a
// daily sinusoid around their nominal value with noise; generation is
// dispatched proportionally to PMax to cover the total load. Used by tests
// and the demo so no data directory is required.
type SyntheticChronics struct {
	c        *Case
	episodes []int64 // one seed per chronic
	length   int
	cursor   int
	rng      *rand.Rand
}

// NewSyntheticChronics creates count chronics of the given length.
func NewSyntheticChronics(c *Case, count, length int, seed int64) *SyntheticChronics {
	rng := rand.New(rand.NewSource(seed))
	episodes := make([]int64, count)
	for i := range episodes {
		episodes[i] = rng.Int63()
	}
	return &SyntheticChronics{
		c:        c,
		episodes: episodes,
		length:   length,
		rng:      rng,
	}
}

func (s *SyntheticChronics) Count() int {
	return len(s.episodes)
}

func (s *SyntheticChronics) Shuffle() {
	s.rng.Shuffle(len(s.episodes), func(i, j int) {
		s.episodes[i], s.episodes[j] = s.episodes[j], s.episodes[i]
	})
}

// SetChunkSize is a no-op: synthetic data has no disk access to batch.
func (s *SyntheticChronics) SetChunkSize(int) {}

func (s *SyntheticChronics) Next() (Episode, error) {
	seed := s.episodes[s.cursor%len(s.episodes)]
	s.cursor++
	ep := &syntheticEpisode{
		name:   fmt.Sprintf("synthetic_%d", seed),
		c:      s.c,
		length: s.length,
		rng:    rand.New(rand.NewSource(seed)),
	}
	ep.phases = make([]float64, len(s.c.Loads))
	for i := range ep.phases {
		ep.phases[i] = ep.rng.Float64() * 2 * math.Pi
	}
	return ep, nil
}

type syntheticEpisode struct {
	name   string
	c      *Case
	length int
	phases []float64
	t      int
	rng    *rand.Rand
}

func (e *syntheticEpisode) Name() string {
	return e.name
}

func (e *syntheticEpisode) Step() ([]float64, []float64, error) {
	if e.t >= e.length {
		return nil, nil, io.EOF
	}

	var totalLoad float64
	loadP := make([]float64, len(e.c.Loads))
	daily := 2 * math.Pi * float64(e.t) / 288.0 // 5-minute steps over a day
	for i, ld := range e.c.Loads {
		noise := 1.0 + 0.02*e.rng.NormFloat64()
		loadP[i] = ld.P * (0.85 + 0.15*math.Sin(daily+e.phases[i])) * noise
		if loadP[i] < 0 {
			loadP[i] = 0
		}
		totalLoad += loadP[i]
	}

	var totalPMax float64
	for _, g := range e.c.Generators {
		totalPMax += g.PMax
	}
	genP := make([]float64, len(e.c.Generators))
	for i, g := range e.c.Generators {
		genP[i] = totalLoad * g.PMax / totalPMax
	}

	e.t++
	return loadP, genP, nil
}

func (e *syntheticEpisode) Close() error {
	return nil
}
