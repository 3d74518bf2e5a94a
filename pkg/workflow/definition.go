package workflow

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AppDefinition is the declarative description of an app, as found in the app catalog.
type AppDefinition struct {
	ID            string             `json:"id" yaml:"id"`
	Title         string             `json:"title" yaml:"title"`
	Description   string             `json:"description,omitempty" yaml:"description,omitempty"`
	SelectLigands bool               `json:"selectLigands,omitempty" yaml:"selectLigands,omitempty"`
	ComingSoon    bool               `json:"comingSoon,omitempty" yaml:"comingSoon,omitempty"`
	Widgets       []WidgetDefinition `json:"widgets" yaml:"widgets"`
}

// WidgetDefinition declares one workflow step.
type WidgetDefinition struct {
	ID      string                 `json:"id" yaml:"id"`
	Type    string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Title   string                 `json:"title" yaml:"title"`
	Config  map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs  []InputDefinition      `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []OutputDefinition     `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// OutputDefinition declares a pipe produced by a widget.
type OutputDefinition struct {
	ID string `json:"id" yaml:"id"`
}

// InputDefinition declares a pipe consumed by a widget.
//
// Two shapes are accepted: {"id": "prep.pdb", "source": "load"} and
// {"name": "prep.pdb", "source": {"id": "load", "pipe": "prep.pdb"}}. An input without a source is provided
// by the user on the widget itself.
type InputDefinition struct {
	// Name is the pipe name as seen by the consuming widget.
	Name string
	// SourceWidgetID is the producing widget, empty for user inputs.
	SourceWidgetID string
	// SourcePipe is the pipe name on the producing widget. It defaults to Name.
	SourcePipe string
}

type inputSource struct {
	ID   string `json:"id" yaml:"id"`
	Pipe string `json:"pipe" yaml:"pipe"`
}

type rawInput struct {
	ID     string      `json:"id" yaml:"id"`
	Name   string      `json:"name" yaml:"name"`
	Source interface{} `json:"source" yaml:"source"`
}

func (in *InputDefinition) fromRaw(raw rawInput) error {
	in.Name = raw.ID
	if in.Name == "" {
		in.Name = raw.Name
	}

	switch src := raw.Source.(type) {
	case nil:
	case string:
		in.SourceWidgetID = src
	case map[string]interface{}:
		id, _ := src["id"].(string)
		pipe, _ := src["pipe"].(string)
		in.SourceWidgetID = id
		in.SourcePipe = pipe
	default:
		return configErrorf("input %q has an unsupported source %v", in.Name, src)
	}

	if in.SourcePipe == "" {
		in.SourcePipe = in.Name
	}

	return nil
}

// UnmarshalJSON accepts both input shapes.
func (in *InputDefinition) UnmarshalJSON(data []byte) error {
	var raw rawInput
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to decode input")
	}

	return in.fromRaw(raw)
}

// UnmarshalYAML accepts both input shapes.
func (in *InputDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw rawInput
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "unable to decode input")
	}

	return in.fromRaw(raw)
}

// MarshalJSON writes the nested source shape.
func (in InputDefinition) MarshalJSON() ([]byte, error) {
	raw := struct {
		Name   string       `json:"name"`
		Source *inputSource `json:"source,omitempty"`
	}{Name: in.Name}
	if in.SourceWidgetID != "" {
		raw.Source = &inputSource{ID: in.SourceWidgetID, Pipe: in.SourcePipe}
	}

	return sonic.Marshal(raw)
}

// ParseAppDefinition decodes an app definition. format is "json" or "yaml".
func ParseAppDefinition(data []byte, format string) (AppDefinition, error) {
	var def AppDefinition

	switch strings.ToLower(format) {
	case "json":
		if err := sonic.Unmarshal(data, &def); err != nil {
			return def, errors.Wrap(ErrConfig, err.Error())
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return def, errors.Wrap(ErrConfig, err.Error())
		}
	default:
		return def, configErrorf("unsupported app definition format %q", format)
	}

	return def, nil
}

// LoadAppDefinition reads an app definition from a .json, .yaml or .yml file.
func LoadAppDefinition(filename string) (AppDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return AppDefinition{}, errors.Wrapf(err, "unable to read app definition %s", filename)
	}

	return ParseAppDefinition(data, strings.TrimPrefix(filepath.Ext(filename), "."))
}
