package sorter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Fixture is the synthetic engine output a MockEngine fabricates on Run.
type Fixture struct {
	SpikeTimes    []int64
	SpikeClusters []int64
	Amplitudes    []float64    // optional
	Positions     [][2]float64 // optional
}

// MockEngine records invocations and optionally fabricates output arrays,
// standing in for the external engine in tests.
type MockEngine struct {
	mu      sync.Mutex
	calls   []Settings
	Err     error
	Fixture *Fixture
}

// Run records the settings and writes the fixture arrays, if any, into the
// results directory.
func (m *MockEngine) Run(_ context.Context, s Settings) error {
	m.mu.Lock()
	m.calls = append(m.calls, s)
	m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Fixture == nil {
		return nil
	}
	return m.Fixture.WriteTo(s.ResultsDir)
}

// Calls returns a copy of the recorded settings, in invocation order.
func (m *MockEngine) Calls() []Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Settings(nil), m.calls...)
}

// WriteTo writes the fixture arrays into dir as .npy files.
func (f *Fixture) WriteTo(dir string) error {
	if err := writeNpy(filepath.Join(dir, SpikeTimesFile), f.SpikeTimes); err != nil {
		return err
	}
	if err := writeNpy(filepath.Join(dir, SpikeClustersFile), f.SpikeClusters); err != nil {
		return err
	}
	if f.Amplitudes != nil {
		if err := writeNpy(filepath.Join(dir, AmplitudesFile), f.Amplitudes); err != nil {
			return err
		}
	}
	if f.Positions != nil {
		m := mat.NewDense(len(f.Positions), 2, nil)
		for i, p := range f.Positions {
			m.Set(i, 0, p[0])
			m.Set(i, 1, p[1])
		}
		if err := writeNpy(filepath.Join(dir, SpikePositionsFile), m); err != nil {
			return err
		}
	}
	return nil
}

func writeNpy(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := npyio.Write(f, v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
