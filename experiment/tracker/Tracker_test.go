package tracker

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestScalars(t *testing.T) {
	s := NewScalars()
	for step := 0; step < 3; step++ {
		if err := s.LogScalar("loss", float64(step)/2, step); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.LogScalar("reward", 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.LogScalar("", 1, 0); err == nil {
		t.Errorf("logScalar: expected error on empty name")
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "loss" || names[1] != "reward" {
		t.Errorf("names: \n\twant([loss reward]) \n\thave(%v)", names)
	}

	latest, ok := s.Latest("loss")
	if !ok || latest.Step != 2 || latest.Value != 1 {
		t.Errorf("latest: \n\twant({2 1}) \n\thave(%v)", latest)
	}
	if _, ok := s.Latest("missing"); ok {
		t.Errorf("latest: missing series should not exist")
	}

	path := filepath.Join(t.TempDir(), "scalars.bin")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadScalars(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Series("loss"); len(got) != 3 || got[1].Value != 0.5 {
		t.Errorf("loadScalars: wrong series %v", got)
	}
}

type failing struct{}

func (failing) LogScalar(string, float64, int) error {
	return errors.New("failed")
}

func TestMulti(t *testing.T) {
	a, b := NewScalars(), NewScalars()
	m := Multi(a, nil, failing{}, b)

	if err := m.LogScalar("x", 1, 1); err == nil {
		t.Errorf("multi: expected error from failing tracker")
	}
	if len(a.Series("x")) != 1 || len(b.Series("x")) != 1 {
		t.Errorf("multi: every tracker should record the scalar")
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf), zerolog.InfoLevel)
	if err := l.LogScalar("entropy", 0.7, 4); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{`"scalar":"entropy"`, `"value":0.7`,
		`"step":4`, `"component":"tracker"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log: output %q missing %v", out, want)
		}
	}
}
