// Package config loads the YAML configuration of the hourly command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	scheduler "github.com/DEEJ4Y/hourly"
	yaml "go.yaml.in/yaml/v3"
)

// Config is the top-level configuration file.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Runner RunnerConfig `yaml:"runner"`
	Mongo  *MongoConfig `yaml:"mongo"`
	Tasks  []TaskConfig `yaml:"tasks"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type RunnerConfig struct {
	Throttle   string `yaml:"throttle"`
	Schedule   string `yaml:"schedule"`
	Iterations int    `yaml:"iterations"`
}

// MongoConfig points at a collection holding extra task definitions.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Timeout    string `yaml:"timeout"`
}

type TaskConfig struct {
	Name         string `yaml:"name"`
	StartFrom    string `yaml:"startFrom"`
	RepeatUntil  string `yaml:"repeatUntil"`
	EarliestDone string `yaml:"earliestDone"`
	LatestDone   string `yaml:"latestDone"`
}

// timeLayouts are tried in order when parsing instants.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that can be checked without I/O.
func (c *Config) Validate() error {
	if _, err := c.Runner.ThrottleDuration(); err != nil {
		return err
	}
	if err := scheduler.ValidateSchedule(c.Runner.Schedule); err != nil {
		return fmt.Errorf("runner.schedule: %w", err)
	}
	if c.Runner.Iterations < 0 {
		return fmt.Errorf("runner.iterations: must be >= 0")
	}
	if c.Mongo != nil {
		if strings.TrimSpace(c.Mongo.URI) == "" {
			return fmt.Errorf("mongo.uri: required")
		}
		if c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return fmt.Errorf("mongo: database and collection are required")
		}
		if _, err := c.Mongo.TimeoutDuration(); err != nil {
			return err
		}
	}
	if _, err := c.BuildTasks(); err != nil {
		return err
	}
	return nil
}

// BuildTasks converts the task entries into scheduler tasks.
func (c *Config) BuildTasks() ([]*scheduler.Task, error) {
	tasks := make([]*scheduler.Task, 0, len(c.Tasks))
	for i, tc := range c.Tasks {
		task, err := tc.build(fmt.Sprintf("tasks[%d]", i))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (tc TaskConfig) build(path string) (*scheduler.Task, error) {
	if strings.TrimSpace(tc.StartFrom) == "" {
		return nil, fmt.Errorf("%s.startFrom: required", path)
	}
	startFrom, err := ParseTime(path+".startFrom", tc.StartFrom)
	if err != nil {
		return nil, err
	}

	name := tc.Name
	if name == "" {
		name = path
	}
	task := scheduler.NewTask(name, startFrom)

	if task.RepeatUntil, err = optionalTime(path+".repeatUntil", tc.RepeatUntil); err != nil {
		return nil, err
	}
	if task.EarliestDone, err = optionalTime(path+".earliestDone", tc.EarliestDone); err != nil {
		return nil, err
	}
	if task.LatestDone, err = optionalTime(path+".latestDone", tc.LatestDone); err != nil {
		return nil, err
	}
	return task, nil
}

// ParseTime parses an RFC 3339 instant, a "2006-01-02T15:04" UTC time or a
// bare UTC date.
func ParseTime(path, raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: invalid time %q", path, raw)
}

func optionalTime(path, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := ParseTime(path, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
