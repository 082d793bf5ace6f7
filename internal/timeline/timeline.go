// Package timeline loads declarative step lists from YAML and compiles them
// into scheduler sequences.
//
//	- name: door_open
//	  owner: door
//	  steps:
//	    - wait: 1.5s
//	    - say: the door creaks open
//	    - raise: door_opened
//	- name: guard
//	  steps:
//	    - until: door_opened
//	      timeout: 10s
//	    - start: door_open
//	    - manual: true
package timeline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// StepSpec is one YAML step. Exactly one of the kind fields is set; Timeout
// only applies to until and start.
type StepSpec struct {
	Wait    string `yaml:"wait"`
	Frames  *int   `yaml:"frames"`
	Until   string `yaml:"until"`
	Manual  bool   `yaml:"manual"`
	Start   string `yaml:"start"`
	Say     string `yaml:"say"`
	Raise   string `yaml:"raise"`
	Clear   string `yaml:"clear"`
	Timeout string `yaml:"timeout"`
}

// Timeline is a named list of steps.
type Timeline struct {
	Name     string     `yaml:"name"`
	Owner    string     `yaml:"owner"`
	RealTime bool       `yaml:"real_time"`
	Steps    []StepSpec `yaml:"steps"`
}

// Table holds validated timelines by name.
type Table struct {
	timelines map[string]*Timeline
}

// LoadTable loads and validates a timeline YAML file.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timelines: %w", err)
	}
	t, err := ParseTable(raw)
	if err != nil {
		return nil, fmt.Errorf("timelines %s: %w", path, err)
	}
	return t, nil
}

// ParseTable decodes and validates a timeline YAML document.
func ParseTable(raw []byte) (*Table, error) {
	var entries []Timeline
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse timelines: %w", err)
	}
	t := &Table{timelines: make(map[string]*Timeline, len(entries))}
	for i := range entries {
		tl := &entries[i]
		if tl.Name == "" {
			return nil, fmt.Errorf("timeline #%d: missing name", i)
		}
		if _, dup := t.timelines[tl.Name]; dup {
			return nil, fmt.Errorf("timeline %q: defined twice", tl.Name)
		}
		t.timelines[tl.Name] = tl
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Get(name string) *Timeline {
	return t.timelines[name]
}

func (t *Table) Count() int {
	return len(t.timelines)
}

// Names returns the timeline names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.timelines))
	for name := range t.timelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) validate() error {
	var errs []error
	for _, name := range t.Names() {
		tl := t.timelines[name]
		for i, st := range tl.Steps {
			if err := t.validateStep(st); err != nil {
				errs = append(errs, fmt.Errorf("timeline %q step %d: %w", name, i, err))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return t.checkCycles()
}

func (t *Table) validateStep(st StepSpec) error {
	kinds := 0
	for _, set := range []bool{
		st.Wait != "", st.Frames != nil, st.Until != "", st.Manual,
		st.Start != "", st.Say != "", st.Raise != "", st.Clear != "",
	} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of wait, frames, until, manual, start, say, raise, clear is required, got %d", kinds)
	}
	if st.Wait != "" {
		if _, err := parseDuration(st.Wait); err != nil {
			return fmt.Errorf("wait: %w", err)
		}
	}
	if st.Frames != nil && *st.Frames < 0 {
		return fmt.Errorf("frames must not be negative, got %d", *st.Frames)
	}
	if st.Timeout != "" {
		if st.Until == "" && st.Start == "" {
			return errors.New("timeout only applies to until and start")
		}
		if _, err := parseDuration(st.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	if st.Start != "" && t.timelines[st.Start] == nil {
		return fmt.Errorf("start: unknown timeline %q", st.Start)
	}
	return nil
}

// checkCycles rejects timelines that start themselves, directly or not.
// Such a chain would build sub-sequences forever.
func (t *Table) checkCycles() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(t.timelines))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("timeline start cycle: %v", append(path, name))
		case visited:
			return nil
		}
		state[name] = visiting
		for _, st := range t.timelines[name].Steps {
			if st.Start == "" {
				continue
			}
			if err := visit(st.Start, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}
	for _, name := range t.Names() {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", s)
	}
	return d, nil
}
