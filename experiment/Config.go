package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goppo/agent/nonlinear/discrete/actorcritic"
	"github.com/samuelfneumann/goppo/agent/ppo"
	"github.com/samuelfneumann/goppo/environment/envconfig"
	"github.com/samuelfneumann/goppo/solver/schedule"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables which override keys of
// a configuration file, for example GOPPO_PPO_CLIP_RATIO
const EnvPrefix = "GOPPO"

// RunConfig describes a single training run
type RunConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Seed     uint64 `mapstructure:"seed" yaml:"seed"`
	Updates  int    `mapstructure:"updates" yaml:"updates"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// OutDir holds one sub-directory per run
	OutDir string `mapstructure:"out_dir" yaml:"out_dir"`
}

// CheckpointConfig describes which checkpoints of a run are kept
type CheckpointConfig struct {
	MaxToKeep     int  `mapstructure:"max_to_keep" yaml:"max_to_keep"`
	LowerIsBetter bool `mapstructure:"lower_is_better" yaml:"lower_is_better"`
}

// ServerConfig describes the HTTP server of a run. An empty address
// disables the server.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// Config describes an experiment
type Config struct {
	Run        RunConfig          `mapstructure:"run" yaml:"run"`
	Env        envconfig.Config   `mapstructure:"env" yaml:"env"`
	Model      actorcritic.Config `mapstructure:"model" yaml:"model"`
	PPO        ppo.Config         `mapstructure:"ppo" yaml:"ppo"`
	Schedule   schedule.Config    `mapstructure:"schedule" yaml:"schedule"`
	Checkpoint CheckpointConfig   `mapstructure:"checkpoint" yaml:"checkpoint"`
	Server     ServerConfig       `mapstructure:"server" yaml:"server"`
}

// DefaultConfig returns the default experiment, PPO on cartpole
func DefaultConfig() Config {
	return Config{
		Run: RunConfig{
			Name:     "ppo",
			Seed:     1,
			Updates:  100,
			LogLevel: "info",
			OutDir:   "runs",
		},
		Env:        envconfig.DefaultConfig(),
		Model:      actorcritic.DefaultConfig(),
		PPO:        ppo.DefaultConfig(),
		Schedule:   schedule.DefaultConfig(),
		Checkpoint: CheckpointConfig{MaxToKeep: 5},
	}
}

// Load reads the YAML configuration file at path on top of the default
// Config. Keys present in the file may be overridden by environment
// variables prefixed with EnvPrefix.
func Load(path string) (Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if err := vp.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "load: could not read %v", path)
	}

	// Lists in the file replace the defaults instead of merging into them
	c := DefaultConfig()
	zeroLists := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
	if err := vp.Unmarshal(&c, zeroLists); err != nil {
		return Config{}, errors.Wrapf(err, "load: could not decode %v", path)
	}
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "load: %v", path)
	}
	return c, nil
}

// Save writes the Config to path as YAML
func (c Config) Save(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}

// Validate checks every section of the Config
func (c Config) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return errors.Wrap(err, "run")
	}
	if err := c.Env.Validate(); err != nil {
		return errors.Wrap(err, "env")
	}
	if err := c.Model.Validate(); err != nil {
		return errors.Wrap(err, "model")
	}
	if err := c.PPO.Validate(); err != nil {
		return errors.Wrap(err, "ppo")
	}
	if c.PPO.UseLRSchedule {
		if err := c.Schedule.Validate(); err != nil {
			return errors.Wrap(err, "schedule")
		}
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	if c.PPO.EvalFrequency > 0 && c.Env.EvalEnvs < 1 {
		return fmt.Errorf("env: eval_frequency is %v but eval_envs is %v",
			c.PPO.EvalFrequency, c.Env.EvalEnvs)
	}
	return nil
}

// Validate checks that the RunConfig describes a valid run
func (r RunConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("validate: empty run name")
	}
	if r.Updates < 1 {
		return fmt.Errorf("validate: updates must be positive, have %v",
			r.Updates)
	}
	if _, err := r.Level(); err != nil {
		return errors.Wrap(err, "validate")
	}
	return nil
}

// Level returns the log level of the run
func (r RunConfig) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(r.LogLevel))
}

// Validate checks that the CheckpointConfig is valid
func (c CheckpointConfig) Validate() error {
	if c.MaxToKeep < 0 {
		return fmt.Errorf("validate: max_to_keep must be non-negative, "+
			"have %v", c.MaxToKeep)
	}
	return nil
}
