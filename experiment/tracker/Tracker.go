// Package tracker implements Trackers, which record the scalar
// statistics of an experiment as it runs
package tracker

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Tracker records a named scalar at some step of an experiment, such
// as the number of completed updates
type Tracker interface {
	LogScalar(name string, value float64, step int) error
}

// Point is a single recorded scalar
type Point struct {
	Step  int
	Value float64
}

// Scalars is a Tracker which keeps every recorded scalar in memory,
// one series per name. It is safe for concurrent use.
type Scalars struct {
	mu     sync.RWMutex
	series map[string][]Point
}

// NewScalars returns a new, empty Scalars Tracker
func NewScalars() *Scalars {
	return &Scalars{series: make(map[string][]Point)}
}

// LogScalar implements the Tracker interface
func (s *Scalars) LogScalar(name string, value float64, step int) error {
	if name == "" {
		return errors.New("logScalar: empty scalar name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[name] = append(s.series[name], Point{Step: step, Value: value})
	return nil
}

// Names returns the sorted names of all recorded series
func (s *Scalars) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series returns a copy of the series with the given name
func (s *Scalars) Series(name string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Point(nil), s.series[name]...)
}

// Latest returns the most recently recorded point of a series
func (s *Scalars) Latest(name string) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[name]
	if len(series) == 0 {
		return Point{}, false
	}
	return series[len(series)-1], true
}

// Save saves all recorded series to a gob encoded file
func (s *Scalars) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "save: could not create data file %v",
			filename)
	}
	defer file.Close()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := gob.NewEncoder(file).Encode(s.series); err != nil {
		return errors.Wrap(err, "save: could not encode data")
	}
	return nil
}

// LoadScalars loads and returns the data saved by a Scalars Tracker
func LoadScalars(filename string) (*Scalars, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadScalars: could not open data file")
	}
	defer file.Close()

	series := make(map[string][]Point)
	if err := gob.NewDecoder(file).Decode(&series); err != nil {
		return nil, errors.Wrap(err, "loadScalars: could not decode data")
	}
	return &Scalars{series: series}, nil
}
