package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// Params are the tunable constants of the hybrid Leitner / ease-factor
// schedule. Zero values are replaced with defaults by NewScheduler.
type Params struct {
	// BaseInterval is the short interval an item resets to after an incorrect
	// answer and the minimum base the growth curve multiplies from.
	BaseInterval time.Duration

	// NewItemInterval is the fixed interval used for the first review of a
	// brand-new item, whatever the outcome.
	NewItemInterval time.Duration

	// MaxInterval caps interval growth.
	MaxInterval time.Duration

	MinEase   float64
	MaxEase   float64
	StartEase float64

	// EasePenalty is subtracted on incorrect, EaseBonus added on correct-easy.
	EasePenalty float64
	EaseBonus   float64

	// HardFactor and EasyFactor scale ease into the interval multiplier for
	// correct-hard and correct-easy outcomes.
	HardFactor float64
	EasyFactor float64
}

const (
	defaultBaseInterval    = 24 * time.Hour
	defaultNewItemInterval = 10 * time.Minute
	defaultMaxInterval     = 365 * 24 * time.Hour

	defaultMinEase     = 1.3
	defaultMaxEase     = 2.5
	defaultStartEase   = 2.5
	defaultEasePenalty = 0.2
	defaultEaseBonus   = 0.1
	defaultHardFactor  = 0.8
	defaultEasyFactor  = 1.3
)

// DefaultParams returns the default instantiation of the schedule.
func DefaultParams() Params {
	return Params{
		BaseInterval:    defaultBaseInterval,
		NewItemInterval: defaultNewItemInterval,
		MaxInterval:     defaultMaxInterval,
		MinEase:         defaultMinEase,
		MaxEase:         defaultMaxEase,
		StartEase:       defaultStartEase,
		EasePenalty:     defaultEasePenalty,
		EaseBonus:       defaultEaseBonus,
		HardFactor:      defaultHardFactor,
		EasyFactor:      defaultEasyFactor,
	}
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.BaseInterval == 0 {
		p.BaseInterval = d.BaseInterval
	}
	if p.NewItemInterval == 0 {
		p.NewItemInterval = d.NewItemInterval
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MinEase == 0 {
		p.MinEase = d.MinEase
	}
	if p.MaxEase == 0 {
		p.MaxEase = d.MaxEase
	}
	if p.StartEase == 0 {
		p.StartEase = d.StartEase
	}
	if p.EasePenalty == 0 {
		p.EasePenalty = d.EasePenalty
	}
	if p.EaseBonus == 0 {
		p.EaseBonus = d.EaseBonus
	}
	if p.HardFactor == 0 {
		p.HardFactor = d.HardFactor
	}
	if p.EasyFactor == 0 {
		p.EasyFactor = d.EasyFactor
	}
	return p
}

// Validate rejects parameter sets that would break the schedule invariants.
func (p Params) Validate() error {
	var errs []error

	if p.BaseInterval <= 0 {
		errs = append(errs, fmt.Errorf("base interval %s must be positive", p.BaseInterval))
	}
	if p.NewItemInterval <= 0 {
		errs = append(errs, fmt.Errorf("new item interval %s must be positive", p.NewItemInterval))
	}
	if p.MaxInterval < p.BaseInterval {
		errs = append(errs, fmt.Errorf("max interval %s is shorter than base interval %s", p.MaxInterval, p.BaseInterval))
	}
	if p.MinEase < 1 {
		errs = append(errs, fmt.Errorf("min ease %.2f must be at least 1", p.MinEase))
	}
	if p.MaxEase < p.MinEase {
		errs = append(errs, fmt.Errorf("max ease %.2f is below min ease %.2f", p.MaxEase, p.MinEase))
	}
	if p.StartEase < p.MinEase || p.StartEase > p.MaxEase {
		errs = append(errs, fmt.Errorf("start ease %.2f outside [%.2f, %.2f]", p.StartEase, p.MinEase, p.MaxEase))
	}
	if p.EasePenalty < 0 || p.EaseBonus < 0 {
		errs = append(errs, errors.New("ease steps must not be negative"))
	}
	if p.MinEase*p.HardFactor <= 1 {
		errs = append(errs, fmt.Errorf("hard factor %.2f does not grow the interval at min ease", p.HardFactor))
	}
	if p.EasyFactor < p.HardFactor {
		errs = append(errs, fmt.Errorf("easy factor %.2f is below hard factor %.2f", p.EasyFactor, p.HardFactor))
	}

	return errors.Join(errs...)
}

// CheckProgress reports state these params could never have produced: an
// ease outside [MinEase, MaxEase], an interval outside [0, MaxInterval], or
// a reviewed item whose due time is not its last review plus its interval.
func (p Params) CheckProgress(item progress.ItemProgress) error {
	var errs []error

	if item.EaseFactor < p.MinEase || item.EaseFactor > p.MaxEase {
		errs = append(errs, fmt.Errorf("ease factor %.2f outside [%.2f, %.2f]", item.EaseFactor, p.MinEase, p.MaxEase))
	}
	if item.Interval < 0 || item.Interval > p.MaxInterval {
		errs = append(errs, fmt.Errorf("interval %s outside [0s, %s]", item.Interval, p.MaxInterval))
	}
	if item.Reviewed() {
		if want := item.LastReviewedAt.Add(item.Interval); !item.DueAt.Equal(want) {
			errs = append(errs, fmt.Errorf("due at %s, want last review plus interval %s", item.DueAt.Format(time.RFC3339), want.Format(time.RFC3339)))
		}
	}

	return errors.Join(errs...)
}
