package envconfig

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("validate: default config should be valid: %v", err)
	}

	invalid := map[string]func(*Config){
		"environment":   func(c *Config) { c.Environment = "acrobot" },
		"task":          func(c *Config) { c.Task = Goal },
		"episode steps": func(c *Config) { c.EpisodeSteps = 0 },
		"discount":      func(c *Config) { c.Discount = 1.5 },
		"fail angle":    func(c *Config) { c.FailAngle = 0 },
		"eval envs":     func(c *Config) { c.EvalEnvs = -1 },
	}
	for name, mutate := range invalid {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("validate: expected error on invalid %v", name)
		}
	}

	c := DefaultConfig()
	c.Environment = "MountainCar"
	c.Task = "Goal"
	if err := c.Validate(); err != nil {
		t.Errorf("validate: names should be case insensitive: %v", err)
	}
}

func TestBatch(t *testing.T) {
	c := DefaultConfig()
	b, err := c.Batch(3, 10, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 3 || b.ObservationDim() != 4 || b.ActionDim() != 1 {
		t.Errorf("batch: want 3 environments with 4 features, have %v "+
			"with %v", b.Len(), b.ObservationDim())
	}

	actions, err := b.Env(0).ActionSpec().Actions()
	if err != nil {
		t.Fatal(err)
	}
	if actions != 2 {
		t.Errorf("batch: want 2 cartpole actions, have %v", actions)
	}

	obs, err := b.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if obs.At(0, 0) == obs.At(1, 0) {
		t.Errorf("batch: environments should be seeded differently")
	}

	c.Environment = MountainCar
	c.Task = Goal
	m, err := c.Batch(1, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if m.ObservationDim() != 2 {
		t.Errorf("batch: mountain car has 2 features, have %v",
			m.ObservationDim())
	}
}
