package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Metric computes a custom statistic over a number of episodes
type Metric func(episodes []Episode) float64

// Registry holds named custom metrics. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry returns an empty Registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a named Metric to the Registry
func (r *Registry) Register(name string, m Metric) error {
	if name == "" || m == nil {
		return fmt.Errorf("register: metric needs a name and a function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; ok {
		return fmt.Errorf("register: metric %q already registered", name)
	}
	r.metrics[name] = m
	return nil
}

// Names returns the sorted names of the registered metrics
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute evaluates every registered metric on episodes. A metric which
// panics is reported as NaN.
func (r *Registry) Compute(episodes []Episode) map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]float64, len(r.metrics))
	for name, m := range r.metrics {
		results[name] = compute(m, episodes)
	}
	return results
}

func compute(m Metric, episodes []Episode) (value float64) {
	defer func() {
		if recover() != nil {
			value = math.NaN()
		}
	}()
	return m(episodes)
}

// MeanCustom returns a Metric averaging the custom value with the given
// name over all episodes which recorded it
func MeanCustom(name string) Metric {
	return func(episodes []Episode) float64 {
		sum, n := 0.0, 0
		for _, ep := range episodes {
			if v, ok := ep.Custom[name]; ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			return math.NaN()
		}
		return sum / float64(n)
	}
}
