package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/flemzord/codeclaw/internal/security"
)

// Input is the typed argument payload of a tool call. The implementations
// in this file are the only ones.
type Input interface {
	// Tool returns the name of the tool the input belongs to.
	Tool() Name

	// Validate checks required fields.
	Validate() error
}

// ListInput lists a directory, or names a single file.
type ListInput struct {
	Path string `json:"path,omitempty" mapstructure:"path"`
}

// ReadInput reads a whole text file.
type ReadInput struct {
	FilePath string `json:"filePath" mapstructure:"filePath"`
}

// SearchInput searches one file, or the text files directly inside the
// working directory when FilePath is empty.
type SearchInput struct {
	Pattern  string `json:"pattern" mapstructure:"pattern"`
	FilePath string `json:"filePath,omitempty" mapstructure:"filePath"`
}

// EditInput replaces OldString with NewString in a file.
type EditInput struct {
	FilePath   string `json:"filePath" mapstructure:"filePath"`
	OldString  string `json:"oldString" mapstructure:"oldString"`
	NewString  string `json:"newString" mapstructure:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty" mapstructure:"replaceAll"`
}

// ShellInput runs a command line through the configured shell.
type ShellInput struct {
	Command string `json:"command" mapstructure:"command"`
}

func (ListInput) Tool() Name   { return List }
func (ReadInput) Tool() Name   { return Read }
func (SearchInput) Tool() Name { return Search }
func (EditInput) Tool() Name   { return Edit }
func (ShellInput) Tool() Name  { return Shell }

// Validate implements Input.
func (ListInput) Validate() error { return nil }

// Validate implements Input.
func (in ReadInput) Validate() error {
	return require("filePath", in.FilePath)
}

// Validate implements Input.
func (in SearchInput) Validate() error {
	return require("pattern", in.Pattern)
}

// Validate implements Input.
func (in EditInput) Validate() error {
	return require("filePath", in.FilePath)
}

// Validate implements Input.
func (in ShellInput) Validate() error {
	return require("command", in.Command)
}

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	return nil
}

// constructors maps each tool name to a constructor for its input variant.
var constructors = map[Name]func() Input{
	List:   func() Input { return &ListInput{} },
	Read:   func() Input { return &ReadInput{} },
	Search: func() Input { return &SearchInput{} },
	Edit:   func() Input { return &EditInput{} },
	Shell:  func() Input { return &ShellInput{} },
}

// maxArgsDepth bounds the nesting of model-supplied arguments.
const maxArgsDepth = 8

// DecodeInput builds the typed input for the named tool from raw JSON
// arguments. Unknown tool names fail with ErrUnknownTool; malformed or
// incomplete arguments with ErrInvalidInput.
func DecodeInput(name string, args json.RawMessage) (Input, error) {
	ctor, ok := constructors[Name(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := security.CheckSize(args, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := security.CheckJSONDepth(args, maxArgsDepth); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(args, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s arguments: %w", ErrInvalidInput, name, err)
	}

	target := ctor()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tool: decoder for %s: %w", name, err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %s arguments: %w", ErrInvalidInput, name, err)
	}

	in := deref(target)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// deref returns the value form of a decoded input so callers can type
// switch on ListInput rather than *ListInput.
func deref(in Input) Input {
	switch v := in.(type) {
	case *ListInput:
		return *v
	case *ReadInput:
		return *v
	case *SearchInput:
		return *v
	case *EditInput:
		return *v
	case *ShellInput:
		return *v
	default:
		return in
	}
}
