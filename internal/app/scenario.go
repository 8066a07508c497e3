package app

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pilot/internal/gate"
)

var scenarioValidate = validator.New()

// Scenario is a recorded task run: a goal and the actions a host loop
// proposed, with the results they produced. Replaying it drives the
// orchestrator exactly as a live loop would.
type Scenario struct {
	Name   string `yaml:"name" validate:"required"`
	Goal   string `yaml:"goal" validate:"required"`
	System string `yaml:"system,omitempty"`
	// StopOnAskUser ends the replay as soon as the orchestrator asks for help.
	StopOnAskUser bool   `yaml:"stop_on_ask_user,omitempty"`
	Steps         []Step `yaml:"steps" validate:"required,min=1,dive"`

	path string
}

// Step is one proposed action and what happened when it ran.
type Step struct {
	Action gate.Action `yaml:"action"`
	Result StepResult  `yaml:"result"`
	// Data is output produced by a data-producing action; it is run through
	// the output check before the result is recorded.
	Data      any    `yaml:"data,omitempty"`
	SourceURL string `yaml:"source_url,omitempty"`
	DataType  string `yaml:"data_type,omitempty"`
	// Approve answers an approval request raised for this step. Without it
	// the action stays pending and is not executed.
	Approve *bool   `yaml:"approve,omitempty"`
	Expect  *Expect `yaml:"expect,omitempty"`
}

// StepResult mirrors orchestrator.Result in YAML form.
type StepResult struct {
	Success      bool   `yaml:"success"`
	Progress     bool   `yaml:"progress,omitempty"`
	Output       string `yaml:"output,omitempty"`
	Error        string `yaml:"error,omitempty"`
	TaskComplete bool   `yaml:"task_complete,omitempty"`
}

// Expect lists assertions checked after a step; empty fields are skipped.
type Expect struct {
	Decision       string `yaml:"decision,omitempty" validate:"omitempty,oneof=allow deny requires_approval modify"`
	OutputDecision string `yaml:"output_decision,omitempty" validate:"omitempty,oneof=allow deny requires_approval modify"`
	Mode           string `yaml:"mode,omitempty" validate:"omitempty,oneof=exploration execution fast_track cautious recovery"`
	Risk           string `yaml:"risk,omitempty" validate:"omitempty,oneof=low medium high"`
	Reflect        *bool  `yaml:"reflect,omitempty"`
	Reset          *bool  `yaml:"reset,omitempty"`
	AskUser        *bool  `yaml:"ask_user,omitempty"`
}

// Path is the file the scenario was loaded from, if any.
func (s *Scenario) Path() string { return s.path }

// Validate checks required fields.
func (s *Scenario) Validate() error {
	if err := scenarioValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewAppError(ErrCodeScenario, fmt.Sprintf("invalid %s: failed %q", fe.Namespace(), fe.Tag()), nil)
		}
		return NewAppError(ErrCodeScenario, "invalid scenario", err)
	}
	for i, st := range s.Steps {
		if st.Action.Name == "" {
			return NewAppError(ErrCodeScenario, fmt.Sprintf("step %d: action has no name", i+1), nil)
		}
		if st.Expect != nil {
			if err := scenarioValidate.Struct(st.Expect); err != nil {
				return NewAppError(ErrCodeScenario, fmt.Sprintf("step %d: invalid expectation", i+1), err)
			}
		}
	}
	return nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, NewAppError(ErrCodeScenario, "failed to parse scenario", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError(ErrCodeIO, "failed to read scenario", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// LoadScenarios loads every file matching a doublestar pattern such as
// "scenarios/**/*.yaml", in lexical order. A pattern without glob syntax
// names a single file.
func LoadScenarios(pattern string) ([]*Scenario, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, NewAppError(ErrCodeScenario, "bad scenario pattern", err)
	}
	if len(paths) == 0 {
		return nil, NewAppError(ErrCodeIO, "no scenario files match "+pattern, os.ErrNotExist)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
