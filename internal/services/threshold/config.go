package threshold

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ThresholdConfig holds the band boundaries of one signal.
// A nil Low or High disables that side of the band.
type ThresholdConfig struct {
	Low        *float64 `yaml:"low" json:"low,omitempty"`
	High       *float64 `yaml:"high" json:"high,omitempty"`
	Hysteresis float64  `yaml:"hysteresis" json:"hysteresis"`
}

// TimingConfig is shared by every signal of a MultiSignalMonitor.
type TimingConfig struct {
	SmoothingAlpha float64       `yaml:"smoothing_alpha" json:"smoothing_alpha" default:"0.2" validate:"gt=0,lte=1"`
	MinDuration    time.Duration `yaml:"min_duration" json:"min_duration" default:"500ms" validate:"gte=0"`
	Cooldown       time.Duration `yaml:"cooldown" json:"cooldown" default:"2s" validate:"gte=0"`
}

// DefaultTiming returns the timing used when nothing is configured.
func DefaultTiming() TimingConfig {
	var t TimingConfig
	_ = defaults.Set(&t)
	return t
}

// Float returns a pointer to v, handy for building ThresholdConfig literals.
func Float(v float64) *float64 { return &v }

// ExitLow is the value the smoothed signal must reach to leave the Low band.
func (c ThresholdConfig) ExitLow() (float64, bool) {
	if c.Low == nil {
		return 0, false
	}
	return *c.Low + c.Hysteresis, true
}

// ExitHigh is the value the smoothed signal must fall to to leave the High band.
func (c ThresholdConfig) ExitHigh() (float64, bool) {
	if c.High == nil {
		return 0, false
	}
	return *c.High - c.Hysteresis, true
}

// Validate checks the band invariants for the named signal.
func (c ThresholdConfig) Validate(signal string) error {
	if c.Low != nil && !isFinite(*c.Low) {
		return &ConfigurationError{Signal: signal, Field: "low", Reason: "must be finite"}
	}
	if c.High != nil && !isFinite(*c.High) {
		return &ConfigurationError{Signal: signal, Field: "high", Reason: "must be finite"}
	}
	if !isFinite(c.Hysteresis) || c.Hysteresis < 0 {
		return &ConfigurationError{Signal: signal, Field: "hysteresis", Reason: fmt.Sprintf("must be >= 0, got %v", c.Hysteresis)}
	}
	if c.Low == nil || c.High == nil {
		return nil
	}
	if *c.Low >= *c.High {
		return &ConfigurationError{Signal: signal, Field: "low", Reason: fmt.Sprintf("low %v must be below high %v", *c.Low, *c.High)}
	}
	// exit_low above high or exit_high below low would let the bands overlap
	if *c.Low+c.Hysteresis > *c.High || *c.High-c.Hysteresis < *c.Low {
		return &ConfigurationError{Signal: signal, Field: "hysteresis", Reason: fmt.Sprintf("hysteresis %v overlaps band [%v, %v]", c.Hysteresis, *c.Low, *c.High)}
	}
	return nil
}

// Validate checks the shared timing parameters.
func (t TimingConfig) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())}
		}
		return &ConfigurationError{Reason: err.Error()}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
