package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultThrottle is used when runner.throttle is omitted. An explicit
// "0s" means cycles run back to back.
const DefaultThrottle = time.Minute

// DefaultMongoTimeout bounds connecting to MongoDB and loading tasks when
// mongo.timeout is omitted.
const DefaultMongoTimeout = 10 * time.Second

// ThrottleDuration returns the configured throttle, DefaultThrottle when
// omitted.
func (r RunnerConfig) ThrottleDuration() (time.Duration, error) {
	return parseDuration("runner.throttle", r.Throttle, DefaultThrottle)
}

// TimeoutDuration returns the configured timeout, DefaultMongoTimeout when
// omitted. A zero timeout is rejected as no connection could succeed.
func (m MongoConfig) TimeoutDuration() (time.Duration, error) {
	d, err := parseDuration("mongo.timeout", m.Timeout, DefaultMongoTimeout)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("mongo.timeout: must be > 0")
	}
	return d, nil
}

// parseDuration parses a non-negative duration field named path, returning
// def when the field is empty.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
