package checkpointer

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// RegistryFile is the name of the file in the checkpoint directory
// which lists the kept checkpoints
const RegistryFile = "checkpoint_registry.yaml"

// ErrNoCheckpoints is returned when loading from an empty Manager
var ErrNoCheckpoints = errors.New("no checkpoints")

// Entry describes a single saved checkpoint
type Entry struct {
	Update int       `yaml:"update"`
	Metric float64   `yaml:"metric"`
	Path   string    `yaml:"path"`
	Time   time.Time `yaml:"time"`
}

type registry struct {
	Checkpoints []Entry `yaml:"checkpoints"`
}

// Manager is a Checkpointer which keeps the best checkpoints of a
// model by metric in a directory. The kept checkpoints are listed in a
// registry file so that a Manager created on an existing directory
// continues from the checkpoints stored there.
type Manager struct {
	dir            string
	object         Serializable
	filename       func(int) string
	maxToKeep      int
	higherIsBetter bool
	logger         zerolog.Logger

	// Ordered from best to worst
	entries []Entry
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithMaxToKeep sets the number of checkpoints to keep. If n <= 0,
// all checkpoints are kept.
func WithMaxToKeep(n int) ManagerOption {
	return func(m *Manager) {
		m.maxToKeep = n
	}
}

// WithLowerIsBetter ranks checkpoints with lower metrics higher, for
// example when the metric is a loss
func WithLowerIsBetter() ManagerOption {
	return func(m *Manager) {
		m.higherIsBetter = false
	}
}

// WithManagerLogger sets the logger of the Manager
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "checkpointer").Logger()
	}
}

// NewManager returns a new Manager saving object to dir, which is
// created if it does not exist. Checkpoints are named ppo_update_<n>.
func NewManager(dir string, object Serializable,
	opts ...ManagerOption) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "newManager: could not create %v", dir)
	}

	m := &Manager{
		dir:            dir,
		object:         object,
		filename:       FilenameEnumerator(dir, UpdatePrefix, ""),
		maxToKeep:      5,
		higherIsBetter: true,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.loadRegistry(); err != nil {
		return nil, errors.Wrap(err, "newManager")
	}
	return m, nil
}

// Checkpoint implements the Checkpointer interface. The model is saved
// and the worst checkpoints beyond the number to keep are removed.
func (m *Manager) Checkpoint(update int, metric float64) error {
	path := m.filename(update)
	if err := m.object.Save(path); err != nil {
		return errors.Wrapf(err, "checkpoint: update %v", update)
	}

	// Replace any previous checkpoint of the same update
	m.remove(path)
	m.entries = append(m.entries, Entry{
		Update: update,
		Metric: metric,
		Path:   path,
		Time:   time.Now(),
	})
	m.sort()

	if m.maxToKeep > 0 && len(m.entries) > m.maxToKeep {
		// The newest checkpoint is removed too if it is not good enough
		for _, e := range m.entries[m.maxToKeep:] {
			if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
				m.logger.Error().Err(err).Str("path", e.Path).
					Msg("could not remove checkpoint")
			}
		}
		m.entries = m.entries[:m.maxToKeep]
	}

	m.logger.Info().
		Int("update", update).
		Float64("metric", metric).
		Str("path", path).
		Msg("checkpoint saved")
	return m.saveRegistry()
}

// Entries returns the kept checkpoints, ordered from best to worst
func (m *Manager) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Best returns the checkpoint with the best metric
func (m *Manager) Best() (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	return m.entries[0], true
}

// Latest returns the checkpoint of the most recent update
func (m *Manager) Latest() (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	latest := m.entries[0]
	for _, e := range m.entries[1:] {
		if e.Update > latest.Update {
			latest = e
		}
	}
	return latest, true
}

// LoadBest loads the checkpoint with the best metric into the model
func (m *Manager) LoadBest() (Entry, error) {
	e, ok := m.Best()
	if !ok {
		return Entry{}, errors.Wrap(ErrNoCheckpoints, "loadBest")
	}
	return e, errors.Wrap(m.object.Load(e.Path), "loadBest")
}

// LoadLatest loads the checkpoint of the most recent update into the
// model
func (m *Manager) LoadLatest() (Entry, error) {
	e, ok := m.Latest()
	if !ok {
		return Entry{}, errors.Wrap(ErrNoCheckpoints, "loadLatest")
	}
	return e, errors.Wrap(m.object.Load(e.Path), "loadLatest")
}

// Delete removes the checkpoint of an update
func (m *Manager) Delete(update int) error {
	path := m.filename(update)
	if !containsPath(m.entries, path) {
		return errors.Errorf("delete: no checkpoint for update %v", update)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete: could not remove %v", path)
	}
	m.remove(path)
	return m.saveRegistry()
}

// DeleteAll removes every kept checkpoint
func (m *Manager) DeleteAll() error {
	for _, e := range m.entries {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "deleteAll: could not remove %v", e.Path)
		}
	}
	m.entries = nil
	return m.saveRegistry()
}

// remove drops the entry with the given path from the registry
func (m *Manager) remove(path string) {
	entries := m.entries[:0]
	for _, e := range m.entries {
		if e.Path != path {
			entries = append(entries, e)
		}
	}
	m.entries = entries
}

// sort orders the entries from best to worst metric. NaN metrics are
// worst, and ties go to the most recent update.
func (m *Manager) sort() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		a, b := m.entries[i], m.entries[j]
		switch {
		case math.IsNaN(a.Metric) != math.IsNaN(b.Metric):
			return !math.IsNaN(a.Metric)
		case a.Metric == b.Metric || math.IsNaN(a.Metric):
			return a.Update > b.Update
		case m.higherIsBetter:
			return a.Metric > b.Metric
		default:
			return a.Metric < b.Metric
		}
	})
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.dir, RegistryFile)
}

// loadRegistry reads the registry file, if it exists, keeping only the
// checkpoints whose files still exist
func (m *Manager) loadRegistry() error {
	data, err := os.ReadFile(m.registryPath())
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "could not read checkpoint registry")
	}

	var r registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return errors.Wrap(err, "could not parse checkpoint registry")
	}
	for _, e := range r.Checkpoints {
		if _, err := os.Stat(e.Path); err == nil {
			m.entries = append(m.entries, e)
		}
	}
	m.sort()
	return nil
}

func (m *Manager) saveRegistry() error {
	data, err := yaml.Marshal(registry{Checkpoints: m.entries})
	if err != nil {
		return errors.Wrap(err, "could not encode checkpoint registry")
	}
	if err := os.WriteFile(m.registryPath(), data, 0o644); err != nil {
		return errors.Wrap(err, "could not write checkpoint registry")
	}
	return nil
}

func containsPath(entries []Entry, path string) bool {
	for _, e := range entries {
		if e.Path == path {
			return true
		}
	}
	return false
}
