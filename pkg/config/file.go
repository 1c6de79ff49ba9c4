package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"skullstepper-go/pkg/errors"
)

// Load reads an INI-style settings file and applies it on top of the
// defaults. Unknown sections and options are rejected so a typo does
// not silently fall back to a default.
func Load(path string) (Settings, error) {
	s := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return s, errors.Wrap(err, errors.ErrConfigParse, "unable to open %s", path)
	}
	defer f.Close()

	section := ""
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "" {
				return s, errors.ConfigParseError(lineNum, "empty section header")
			}
			switch section {
			case "motion", "position", "homing", "task":
			default:
				return s, errors.ConfigParseError(lineNum, fmt.Sprintf("unknown section [%s]", section))
			}
			continue
		}

		if section == "" {
			return s, errors.ConfigParseError(lineNum, "option before first section header")
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			return s, errors.ConfigParseError(lineNum, "expected key: value")
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])

		if err := applyOption(&s, section, key, val); err != nil {
			return s, err
		}
	}
	if err := scanner.Err(); err != nil {
		return s, errors.Wrap(err, errors.ErrConfigParse, "reading %s", path)
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func applyOption(s *Settings, section, key, val string) error {
	switch section {
	case "motion":
		return applyMotionOption(s, key, val)
	case "position":
		return applyPositionOption(s, key, val)
	case "homing":
		return applyHomingOption(s, key, val)
	case "task":
		return applyTaskOption(s, key, val)
	}
	return errors.ConfigOptionError(section, key, "unknown section")
}

func applyMotionOption(s *Settings, key, val string) error {
	switch key {
	case "max_speed":
		return parseFloat(val, "motion", key, &s.Profile.MaxSpeed)
	case "acceleration":
		return parseFloat(val, "motion", key, &s.Profile.Acceleration)
	case "deceleration":
		return parseFloat(val, "motion", key, &s.Profile.Deceleration)
	case "jerk":
		return parseFloat(val, "motion", key, &s.Profile.Jerk)
	case "emergency_deceleration":
		return parseFloat(val, "motion", key, &s.Profile.EmergencyDeceleration)
	}
	return errors.ConfigOptionError("motion", key, "unknown option")
}

func applyPositionOption(s *Settings, key, val string) error {
	switch key {
	case "min_position":
		return parseInt(val, "position", key, &s.MinPosition)
	case "max_position":
		return parseInt(val, "position", key, &s.MaxPosition)
	}
	return errors.ConfigOptionError("position", key, "unknown option")
}

func applyHomingOption(s *Settings, key, val string) error {
	switch key {
	case "homing_speed":
		if err := parseFloat(val, "homing", key, &s.HomingSpeed); err != nil {
			return err
		}
		s.Profile.HomingSpeed = s.HomingSpeed
		return nil
	case "home_position_percent":
		return parseFloat(val, "homing", key, &s.HomePositionPercent)
	case "limit_safety_margin":
		return parseInt(val, "homing", key, &s.LimitSafetyMargin)
	case "backoff_steps":
		return parseInt(val, "homing", key, &s.BackoffSteps)
	case "minimum_range":
		return parseInt(val, "homing", key, &s.MinimumRange)
	case "homing_timeout":
		return parseDuration(val, "homing", key, &s.HomingTimeout)
	}
	return errors.ConfigOptionError("homing", key, "unknown option")
}

func applyTaskOption(s *Settings, key, val string) error {
	switch key {
	case "tick_interval":
		return parseDuration(val, "task", key, &s.TickInterval)
	case "queue_capacity":
		var n int64
		if err := parseInt(val, "task", key, &n); err != nil {
			return err
		}
		if n <= 0 {
			return errors.ConfigOptionError("task", key, "must be > 0")
		}
		s.QueueCapacity = int(n)
		return nil
	}
	return errors.ConfigOptionError("task", key, "unknown option")
}

func parseFloat(val, section, key string, out *float64) error {
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return errors.ConfigOptionError(section, key, fmt.Sprintf("invalid number %q", val))
	}
	*out = v
	return nil
}

func parseInt(val, section, key string, out *int64) error {
	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return errors.ConfigOptionError(section, key, fmt.Sprintf("invalid integer %q", val))
	}
	*out = v
	return nil
}

func parseDuration(val, section, key string, out *time.Duration) error {
	d, err := time.ParseDuration(val)
	if err != nil {
		return errors.ConfigOptionError(section, key, fmt.Sprintf("invalid duration %q", val))
	}
	*out = d
	return nil
}
