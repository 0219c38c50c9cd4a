package tracker

import "github.com/pkg/errors"

// multi fans scalars out to several Trackers
type multi []Tracker

// Multi returns a Tracker which records each scalar with every one of
// trackers. Nil trackers are skipped.
func Multi(trackers ...Tracker) Tracker {
	m := make(multi, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			m = append(m, t)
		}
	}
	return m
}

// LogScalar implements the Tracker interface. Every Tracker is called
// even if an earlier one fails, and the first error is returned.
func (m multi) LogScalar(name string, value float64, step int) error {
	var first error
	for i, t := range m {
		if err := t.LogScalar(name, value, step); err != nil && first == nil {
			first = errors.Wrapf(err, "logScalar: tracker %v", i)
		}
	}
	return first
}
