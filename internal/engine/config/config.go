// Package config parses and validates the YAML pipeline configuration that
// drives a runner: which elements to instantiate, how their ports connect,
// and per-element settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultChannelCapacity bounds each port channel unless overridden.
const DefaultChannelCapacity = 16

// Config is the top-level pipeline configuration.
type Config struct {
	Runner RunnerConf `yaml:"runner"`
	Tasks  []TaskConf `yaml:"tasks"`
}

// RunnerConf tunes the runner itself.
type RunnerConf struct {
	// ChannelCapacity bounds every port channel. Zero means the default.
	ChannelCapacity int `yaml:"channel_capacity"`
}

// TaskConf declares one element instance and where its receive ports are fed
// from.
type TaskConf struct {
	ID      uint64 `yaml:"id"`
	Element string `yaml:"element"`
	// From lists, per receive port, the task ports feeding it. Entries use
	// the forms "3" (port 0 of task 3) or "3:1" (port 1 of task 3).
	From [][]TaskPort   `yaml:"from"`
	Conf map[string]any `yaml:"conf"`
}

// TaskPort designates one send port of one task.
type TaskPort struct {
	ID   uint64
	Port uint8
}

func (p TaskPort) String() string {
	return fmt.Sprintf("%d:%d", p.ID, p.Port)
}

// UnmarshalYAML accepts "id" or "id:port".
func (p *TaskPort) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTaskPort(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML emits the "id:port" form.
func (p TaskPort) MarshalYAML() (any, error) {
	return p.String(), nil
}

// ParseTaskPort parses "3" or "3:1".
func ParseTaskPort(s string) (TaskPort, error) {
	idPart, portPart, hasPort := strings.Cut(strings.TrimSpace(s), ":")

	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return TaskPort{}, fmt.Errorf("plugflow: invalid task port %q: %w", s, err)
	}
	if !hasPort {
		return TaskPort{ID: id}, nil
	}

	port, err := strconv.ParseUint(portPart, 10, 8)
	if err != nil {
		return TaskPort{}, fmt.Errorf("plugflow: invalid task port %q: %w", s, err)
	}
	return TaskPort{ID: id, Port: uint8(port)}, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("plugflow: parsing pipeline configuration: %w", err)
	}
	return &conf, nil
}

// ChannelCapacity returns the configured capacity or the default.
func (c *Config) ChannelCapacity() int {
	if c.Runner.ChannelCapacity > 0 {
		return c.Runner.ChannelCapacity
	}
	return DefaultChannelCapacity
}

// Validate checks the configuration shape before any element is built.
// Errors are collected so a single run reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Tasks) == 0 {
		errs = append(errs, errors.New("tasks: at least one task is required"))
	}
	if c.Runner.ChannelCapacity < 0 {
		errs = append(errs, errors.New("runner: channel_capacity cannot be negative"))
	}

	seen := make(map[uint64]bool, len(c.Tasks))
	for _, task := range c.Tasks {
		if task.Element == "" {
			errs = append(errs, fmt.Errorf("task %d: element name is required", task.ID))
		}
		if seen[task.ID] {
			errs = append(errs, fmt.Errorf("task %d: id duplication detected", task.ID))
		}
		seen[task.ID] = true
	}

	for _, task := range c.Tasks {
		for port, origins := range task.From {
			for _, origin := range origins {
				if !seen[origin.ID] {
					errs = append(errs, fmt.Errorf(
						"task %d: receive port %d references unknown task %d", task.ID, port, origin.ID))
				}
				if origin.ID == task.ID {
					errs = append(errs, fmt.Errorf(
						"task %d: receive port %d references its own task", task.ID, port))
				}
			}
		}
	}

	if cycle := c.findCycle(); cycle != nil {
		parts := make([]string, len(cycle))
		for i, id := range cycle {
			parts[i] = strconv.FormatUint(id, 10)
		}
		errs = append(errs, fmt.Errorf("tasks %s: wiring cycle", strings.Join(parts, " -> ")))
	}

	return errors.Join(errs...)
}

// findCycle returns the task ids of one wiring cycle, or nil. A cycle can
// never drain: every task in it blocks sending to the next one. Self
// references are reported separately and skipped here.
func (c *Config) findCycle() []uint64 {
	feeds := make(map[uint64][]uint64, len(c.Tasks))
	for _, task := range c.Tasks {
		for _, origins := range task.From {
			for _, origin := range origins {
				if origin.ID != task.ID {
					feeds[task.ID] = append(feeds[task.ID], origin.ID)
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		finished
	)
	state := make(map[uint64]int, len(c.Tasks))

	// Walks the is-fed-by edges; a back edge to a visiting task closes a
	// cycle. The returned path grows caller by caller until the cycle's
	// first task is appended, closing it.
	var walk func(id uint64) []uint64
	walk = func(id uint64) []uint64 {
		state[id] = visiting
		for _, origin := range feeds[id] {
			switch state[origin] {
			case visiting:
				return []uint64{origin, id}
			case unvisited:
				if path := walk(origin); path != nil {
					if path[len(path)-1] != path[0] {
						path = append(path, id)
					}
					return path
				}
			}
		}
		state[id] = finished
		return nil
	}

	for _, task := range c.Tasks {
		if state[task.ID] != unvisited {
			continue
		}
		if path := walk(task.ID); path != nil {
			return path
		}
	}
	return nil
}
