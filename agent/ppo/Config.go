package ppo

import (
	"github.com/pkg/errors"
)

// ErrConfig is returned for invalid trainer configurations
var ErrConfig = errors.New("invalid ppo configuration")

// Config holds the hyperparameters of a Trainer
type Config struct {
	// Clipped surrogate objective
	ClipRatio      float64 `mapstructure:"clip_ratio" yaml:"clip_ratio"`
	ValueClipRatio float64 `mapstructure:"value_clip_ratio" yaml:"value_clip_ratio"` // 0 disables value clipping
	EntropyCoef    float64 `mapstructure:"entropy_coef" yaml:"entropy_coef"`
	ValueCoef      float64 `mapstructure:"value_coef" yaml:"value_coef"`
	MaxGradNorm    float64 `mapstructure:"max_grad_norm" yaml:"max_grad_norm"`

	// Optimization
	PPOEpochs     int     `mapstructure:"ppo_epochs" yaml:"ppo_epochs"`
	MiniBatchSize int     `mapstructure:"mini_batch_size" yaml:"mini_batch_size"`
	LearningRate  float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	UseLRSchedule bool    `mapstructure:"use_lr_schedule" yaml:"use_lr_schedule"`

	// KL penalty and early stopping
	UseKLPenalty bool    `mapstructure:"use_kl_penalty" yaml:"use_kl_penalty"`
	TargetKL     float64 `mapstructure:"target_kl" yaml:"target_kl"`
	KLCoef       float64 `mapstructure:"kl_coef" yaml:"kl_coef"`

	NormalizeAdvantages bool `mapstructure:"normalize_advantages" yaml:"normalize_advantages"`

	// Rollouts
	NumEnvs      int     `mapstructure:"num_envs" yaml:"num_envs"`
	RolloutSteps int     `mapstructure:"rollout_steps" yaml:"rollout_steps"`
	Gamma        float64 `mapstructure:"gamma" yaml:"gamma"`
	GAELambda    float64 `mapstructure:"gae_lambda" yaml:"gae_lambda"`

	// Hooks, in number of updates. A frequency <= 0 disables the hook.
	EvalFrequency int `mapstructure:"eval_frequency" yaml:"eval_frequency"`
	SaveFrequency int `mapstructure:"save_frequency" yaml:"save_frequency"`

	// Evaluation episodes are cut off after EvalMaxSteps steps
	EvalEpisodes int `mapstructure:"eval_episodes" yaml:"eval_episodes"`
	EvalMaxSteps int `mapstructure:"eval_max_steps" yaml:"eval_max_steps"`
}

// DefaultConfig returns the default PPO hyperparameters
func DefaultConfig() Config {
	return Config{
		ClipRatio:           0.2,
		ValueClipRatio:      0.2,
		EntropyCoef:         0.01,
		ValueCoef:           0.5,
		MaxGradNorm:         0.5,
		PPOEpochs:           4,
		MiniBatchSize:       64,
		LearningRate:        3e-4,
		UseLRSchedule:       true,
		UseKLPenalty:        false,
		TargetKL:            0.01,
		KLCoef:              0.2,
		NormalizeAdvantages: true,
		NumEnvs:             8,
		RolloutSteps:        2048,
		Gamma:               0.99,
		GAELambda:           0.95,
		EvalFrequency:       10,
		SaveFrequency:       50,
		EvalEpisodes:        10,
		EvalMaxSteps:        1000,
	}
}

// Validate checks that the Config holds valid hyperparameters. All
// returned errors wrap ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.ClipRatio <= 0 || c.ClipRatio > 1:
		return invalid("clip_ratio must be in (0, 1], have %v", c.ClipRatio)
	case c.ValueClipRatio < 0 || c.ValueClipRatio > 1:
		return invalid("value_clip_ratio must be in [0, 1], have %v",
			c.ValueClipRatio)
	case c.EntropyCoef < 0 || c.ValueCoef < 0:
		return invalid("loss coefficients must be non-negative, have "+
			"entropy_coef %v value_coef %v", c.EntropyCoef, c.ValueCoef)
	case c.PPOEpochs < 1:
		return invalid("ppo_epochs must be at least 1, have %v", c.PPOEpochs)
	case c.NumEnvs < 1 || c.RolloutSteps < 1:
		return invalid("num_envs and rollout_steps must be positive, have "+
			"(%v, %v)", c.NumEnvs, c.RolloutSteps)
	case c.MiniBatchSize < 1 || c.MiniBatchSize > c.NumEnvs*c.RolloutSteps:
		return invalid("mini_batch_size must be in [1, %v], have %v",
			c.NumEnvs*c.RolloutSteps, c.MiniBatchSize)
	case c.LearningRate <= 0:
		return invalid("learning_rate must be positive, have %v",
			c.LearningRate)
	case c.Gamma < 0 || c.Gamma > 1:
		return invalid("gamma must be in [0, 1], have %v", c.Gamma)
	case c.GAELambda < 0 || c.GAELambda > 1:
		return invalid("gae_lambda must be in [0, 1], have %v", c.GAELambda)
	case c.UseKLPenalty && c.TargetKL <= 0:
		return invalid("target_kl must be positive with use_kl_penalty, "+
			"have %v", c.TargetKL)
	case c.KLCoef < 0:
		return invalid("kl_coef must be non-negative, have %v", c.KLCoef)
	case c.EvalFrequency > 0 && (c.EvalEpisodes < 1 || c.EvalMaxSteps < 1):
		return invalid("eval_episodes and eval_max_steps must be positive, "+
			"have (%v, %v)", c.EvalEpisodes, c.EvalMaxSteps)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, "validate: "+format, args...)
}
