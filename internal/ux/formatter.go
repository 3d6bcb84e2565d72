package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formatter writes one command result.
type Formatter interface {
	Format(data interface{}) error
}

// TextRenderer is implemented by results with a styled text form.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// Compact enables compact output (no indentation for JSON/YAML)
	Compact bool
}

// ValidFormat reports whether format names a known formatter.
func ValidFormat(format string) bool {
	switch format {
	case FormatText, FormatJSON, FormatYAML, "":
		return true
	}
	return false
}

// NewFormatter creates a formatter based on the format string
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{}
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	switch format {
	case FormatJSON:
		return &JSONFormatter{opts: opts}, nil
	case FormatYAML:
		return &YAMLFormatter{opts: opts}, nil
	case FormatText, "":
		return &TextFormatter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: text, json, yaml)", format)
	}
}

// Write formats data onto w in one call.
func Write(w io.Writer, format string, data interface{}) error {
	f, err := NewFormatter(format, &FormatterOptions{Writer: w})
	if err != nil {
		return err
	}
	return f.Format(data)
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	opts *FormatterOptions
}

func (f *JSONFormatter) Format(data interface{}) error {
	encoder := json.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	opts *FormatterOptions
}

func (f *YAMLFormatter) Format(data interface{}) error {
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

// TextFormatter prints TextRenderer, Stringer and string values. Anything
// else is an error, so commands must give every result a text form.
type TextFormatter struct {
	opts *FormatterOptions
}

func (f *TextFormatter) Format(data interface{}) error {
	switch v := data.(type) {
	case TextRenderer:
		return v.RenderText(f.opts.Writer)
	case string:
		_, err := fmt.Fprintln(f.opts.Writer, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.opts.Writer, v.String())
		return err
	default:
		return fmt.Errorf("text output is not supported for %T; use --format json or yaml", data)
	}
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
	_ Formatter = (*TextFormatter)(nil)
)
