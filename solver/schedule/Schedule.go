// Package schedule implements learning rate schedules indexed by the
// number of completed updates
package schedule

import (
	"fmt"
	"math"
	"strings"
)

// Schedule returns the learning rate to use after a number of updates
type Schedule interface {
	At(update int) float64
}

// Constant is a Schedule which never changes the learning rate
type Constant float64

// At implements the Schedule interface
func (c Constant) At(int) float64 {
	return float64(c)
}

// Linear interpolates from an initial to a final learning rate over
// a number of updates, after which the final learning rate is used
type Linear struct {
	Initial, Final float64
	Total          int
}

// At implements the Schedule interface
func (l Linear) At(update int) float64 {
	if update >= l.Total {
		return l.Final
	}
	progress := float64(update) / float64(l.Total)
	return l.Initial + (l.Final-l.Initial)*progress
}

// Decay linearly decays the learning rate to zero over a number of
// updates, but never below a fraction Floor of the initial learning
// rate:
//
//	lr(u) = initial * max(1 - u/total, floor)
type Decay struct {
	Initial float64
	Floor   float64
	Total   int
}

// At implements the Schedule interface
func (d Decay) At(update int) float64 {
	factor := 1 - float64(update)/float64(d.Total)
	return d.Initial * math.Max(factor, d.Floor)
}

// Exponential multiplies the learning rate by Rate after each update
type Exponential struct {
	Initial, Rate float64
}

// At implements the Schedule interface
func (e Exponential) At(update int) float64 {
	return e.Initial * math.Pow(e.Rate, float64(update))
}

// Cosine anneals the learning rate from Initial to Min along half a
// cosine period over Total updates
type Cosine struct {
	Initial, Min float64
	Total        int
}

// At implements the Schedule interface
func (c Cosine) At(update int) float64 {
	if update >= c.Total {
		return c.Min
	}
	progress := float64(update) / float64(c.Total)
	return c.Min + (c.Initial-c.Min)*0.5*(1+math.Cos(math.Pi*progress))
}

// Step multiplies the learning rate by Rate every Size updates
type Step struct {
	Initial, Rate float64
	Size          int
}

// At implements the Schedule interface
func (s Step) At(update int) float64 {
	return s.Initial * math.Pow(s.Rate, float64(update/s.Size))
}

// Polynomial decays the learning rate from Initial to Final with the
// given Power over Total updates
type Polynomial struct {
	Initial, Final, Power float64
	Total                 int
}

// At implements the Schedule interface
func (p Polynomial) At(update int) float64 {
	if update >= p.Total {
		return p.Final
	}
	progress := float64(update) / float64(p.Total)
	return (p.Initial-p.Final)*math.Pow(1-progress, p.Power) + p.Final
}

// Func adapts a function to the Schedule interface
type Func func(update int) float64

// At implements the Schedule interface
func (f Func) At(update int) float64 {
	return f(update)
}

// Type names a kind of Schedule in a Config
type Type string

// Available schedule types
const (
	TypeConstant    Type = "constant"
	TypeLinear      Type = "linear"
	TypeDecay       Type = "decay"
	TypeExponential Type = "exponential"
	TypeCosine      Type = "cosine"
	TypeStep        Type = "step"
	TypePolynomial  Type = "polynomial"
)

// Config describes a Schedule. Fields which are not used by the Type
// are ignored.
type Config struct {
	Type     Type    `mapstructure:"type" yaml:"type"`
	Total    int     `mapstructure:"total" yaml:"total"`
	Final    float64 `mapstructure:"final" yaml:"final"`
	Floor    float64 `mapstructure:"floor" yaml:"floor"`
	Rate     float64 `mapstructure:"rate" yaml:"rate"`
	StepSize int     `mapstructure:"step_size" yaml:"step_size"`
	Power    float64 `mapstructure:"power" yaml:"power"`
}

// DefaultConfig returns the configuration of the default PPO schedule,
// which decays the learning rate linearly over 1000 updates to 10% of
// its initial value
func DefaultConfig() Config {
	return Config{Type: TypeDecay, Total: 1000, Floor: 0.1}
}

// Validate checks that the Config describes a valid Schedule
func (c Config) Validate() error {
	kind := Type(strings.ToLower(string(c.Type)))
	switch kind {
	case TypeConstant:
		return nil
	case TypeLinear, TypeDecay, TypeCosine:
		if c.Total <= 0 {
			return fmt.Errorf("validate: %v schedule needs positive total "+
				"updates, have %v", kind, c.Total)
		}
	case TypePolynomial:
		if c.Total <= 0 || c.Power <= 0 {
			return fmt.Errorf("validate: polynomial schedule needs positive "+
				"total and power, have (%v, %v)", c.Total, c.Power)
		}
	case TypeExponential:
		if c.Rate <= 0 || c.Rate > 1 {
			return fmt.Errorf("validate: exponential rate must be in (0, 1], "+
				"have %v", c.Rate)
		}
	case TypeStep:
		if c.Rate <= 0 || c.Rate > 1 || c.StepSize <= 0 {
			return fmt.Errorf("validate: step schedule needs rate in (0, 1] "+
				"and positive step size, have (%v, %v)", c.Rate, c.StepSize)
		}
	default:
		return fmt.Errorf("validate: unknown schedule type %q", c.Type)
	}

	if kind == TypeDecay && (c.Floor < 0 || c.Floor > 1) {
		return fmt.Errorf("validate: decay floor must be in [0, 1], have %v",
			c.Floor)
	}
	return nil
}

// New returns the Schedule described by c, starting from the initial
// learning rate lr
func New(c Config, lr float64) (Schedule, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	switch Type(strings.ToLower(string(c.Type))) {
	case TypeLinear:
		return Linear{Initial: lr, Final: c.Final, Total: c.Total}, nil
	case TypeDecay:
		return Decay{Initial: lr, Floor: c.Floor, Total: c.Total}, nil
	case TypeExponential:
		return Exponential{Initial: lr, Rate: c.Rate}, nil
	case TypeCosine:
		return Cosine{Initial: lr, Min: c.Final, Total: c.Total}, nil
	case TypeStep:
		return Step{Initial: lr, Rate: c.Rate, Size: c.StepSize}, nil
	case TypePolynomial:
		return Polynomial{Initial: lr, Final: c.Final, Power: c.Power,
			Total: c.Total}, nil
	default:
		return Constant(lr), nil
	}
}
