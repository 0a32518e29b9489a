// Package workflow defines the parsed workflow document: its settings,
// steps, and matrix-expansion model, plus the loader and validator that
// turn a YAML file into a compiled Document.
package workflow

import (
	"gopkg.in/yaml.v3"

	"github.com/stacpipe/stacpipe/internal/stage"
)

// Document is the full, compiled workflow: resolved variables, settings,
// and an ordered set of Step definitions. Immutable once parsed.
type Document struct {
	Name       string   `yaml:"name" validate:"required,min=1,max=200"`
	WorkflowID string   `yaml:"workflow_id,omitempty" validate:"omitempty,min=1,max=200"`
	Settings   Settings `yaml:"settings,omitempty"`
	Steps      []Step   `yaml:"steps" validate:"required,min=1,dive"`
}

// Settings holds workflow-wide configuration.
type Settings struct {
	Logging    LoggingSettings   `yaml:"logging,omitempty"`
	Variables  map[string]string `yaml:"variables,omitempty"`
	Checkpoint CheckpointSettings `yaml:"checkpoint,omitempty"`
}

// LoggingSettings controls the root logger.
type LoggingSettings struct {
	Level            string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARNING ERROR"`
	File             string `yaml:"file,omitempty"`
	OutputFormat     string `yaml:"output_format,omitempty" validate:"omitempty,oneof=text json"`
	ProgressInterval int    `yaml:"progress_interval,omitempty" validate:"omitempty,min=1"`
}

// CheckpointSettings controls the checkpoint manager.
type CheckpointSettings struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Step is one node of the workflow DAG: a stage-class identifier plus its
// stage-specific config, optional dependencies, and optional matrix
// expansion spec.
type Step struct {
	ID        string         `yaml:"id" validate:"required,step_id"`
	Module    stage.Kind     `yaml:"module" validate:"required"`
	Config    map[string]any `yaml:"config,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty"`
	Matrix    map[string][]any `yaml:"matrix,omitempty"`
	LogLevel  string         `yaml:"log_level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARNING ERROR"`
}

// UnmarshalYAML decodes a step, defaulting config to an empty mapping so
// downstream stage constructors never see a nil map.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type rawStep Step
	var temp rawStep
	if err := value.Decode(&temp); err != nil {
		return err
	}
	if temp.Config == nil {
		temp.Config = make(map[string]any)
	}
	*s = Step(temp)
	return nil
}

// StepMap builds a lookup table for steps by id.
func StepMap(steps []Step) map[string]Step {
	out := make(map[string]Step, len(steps))
	for _, step := range steps {
		out[step.ID] = step
	}
	return out
}
