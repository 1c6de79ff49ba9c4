// Package config holds the validated in-memory settings snapshot the
// motion system is initialized from, and a small file loader for the
// daemon. Persisting settings back out is a front-end concern and not
// handled here.
package config

import (
	"sync"
	"time"

	"skullstepper-go/pkg/errors"
	"skullstepper-go/pkg/homing"
	"skullstepper-go/pkg/motion"
)

// Hardware ceiling for commanded speeds, in steps/sec.
const MaxStepFrequency = 10000

// Settings is the complete configuration snapshot.
type Settings struct {
	Profile motion.Profile

	// Operating bounds in steps. Replaced by detected bounds after a
	// successful homing run.
	MinPosition int64
	MaxPosition int64

	// Homing parameters.
	HomingSpeed         float64
	HomePositionPercent float64
	LimitSafetyMargin   int64
	BackoffSteps        int64
	MinimumRange        int64
	HomingTimeout       time.Duration

	// Task parameters.
	TickInterval  time.Duration
	QueueCapacity int
}

// Defaults returns the firmware defaults.
func Defaults() Settings {
	return Settings{
		Profile: motion.Profile{
			MaxSpeed:              5000,
			Acceleration:          5000,
			Deceleration:          5000,
			Jerk:                  1000,
			HomingSpeed:           homing.DefaultHomingSpeed,
			EmergencyDeceleration: 20000,
		},
		MinPosition: 0,
		MaxPosition: 6400, // two revolutions until homing says otherwise

		HomingSpeed:         homing.DefaultHomingSpeed,
		HomePositionPercent: homing.DefaultHomePercent,
		LimitSafetyMargin:   homing.DefaultSafetyMargin,
		BackoffSteps:        homing.DefaultBackoffSteps,
		MinimumRange:        homing.DefaultMinimumRange,
		HomingTimeout:       homing.DefaultTimeout,

		TickInterval:  time.Millisecond,
		QueueCapacity: 10,
	}
}

// Validate checks a whole snapshot.
func (s *Settings) Validate() error {
	if err := validateProfile(s.Profile); err != nil {
		return err
	}
	if err := validateLimits(s.MinPosition, s.MaxPosition); err != nil {
		return err
	}
	if s.HomingSpeed <= 0 || s.HomingSpeed > MaxStepFrequency {
		return errors.ConfigValidationError("homing", "homing_speed", "must be in (0, 10000] steps/sec")
	}
	if s.HomePositionPercent < 0 || s.HomePositionPercent > 100 {
		return errors.ConfigValidationError("homing", "home_position_percent", "must be in [0, 100]")
	}
	if s.LimitSafetyMargin < 0 {
		return errors.ConfigValidationError("homing", "limit_safety_margin", "must be >= 0")
	}
	if s.BackoffSteps <= 0 {
		return errors.ConfigValidationError("homing", "backoff_steps", "must be > 0")
	}
	if s.TickInterval <= 0 {
		return errors.ConfigValidationError("task", "tick_interval", "must be > 0")
	}
	return nil
}

func validateProfile(p motion.Profile) error {
	if p.MaxSpeed <= 0 || p.MaxSpeed > MaxStepFrequency {
		return errors.ConfigValidationError("motion", "max_speed", "must be in (0, 10000] steps/sec")
	}
	if p.Acceleration <= 0 {
		return errors.ConfigValidationError("motion", "acceleration", "must be > 0")
	}
	if p.Deceleration <= 0 {
		return errors.ConfigValidationError("motion", "deceleration", "must be > 0")
	}
	if p.Jerk < 0 {
		return errors.ConfigValidationError("motion", "jerk", "must be >= 0")
	}
	if p.EmergencyDeceleration <= 0 {
		return errors.ConfigValidationError("motion", "emergency_deceleration", "must be > 0")
	}
	return nil
}

func validateLimits(min, max int64) error {
	if min >= max {
		return errors.ConfigValidationError("position", "limits", "min_position must be < max_position")
	}
	return nil
}

// Store guards the live settings. Reads return plain copies; the two
// mutating operations are range-checked and leave the snapshot untouched
// on invalid input.
type Store struct {
	mu sync.RWMutex
	s  Settings
}

// NewStore creates a store. The snapshot must already be valid.
func NewStore(s Settings) (*Store, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Store{s: s}, nil
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Profile returns a copy of the current motion profile.
func (st *Store) Profile() motion.Profile {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Profile
}

// SetMotionProfile replaces the motion profile after validation. On error
// nothing changes.
func (st *Store) SetMotionProfile(p motion.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Profile = p
	return nil
}

// SetPositionLimits replaces the operating bounds after validation. On
// error nothing changes. The motion task calls this with the detected
// bounds when homing completes.
func (st *Store) SetPositionLimits(min, max int64) error {
	if err := validateLimits(min, max); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.MinPosition = min
	st.s.MaxPosition = max
	return nil
}

// Limits returns the current operating bounds.
func (st *Store) Limits() (min, max int64) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.MinPosition, st.s.MaxPosition
}
