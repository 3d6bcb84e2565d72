package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/ux"
)

// CommandContext holds the global flags of one invocation. Commands read it
// from their own flag set instead of package globals, so command trees can
// be built and run side by side in tests.
type CommandContext struct {
	ConfigPath string
	Registry   string
	StateDir   string
	Format     string
	LogLevel   string
	LogFormat  string

	Out io.Writer
	Err io.Writer
}

// NewCommandContext extracts the persistent flags of cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := &CommandContext{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"config", &cc.ConfigPath},
		{"registry", &cc.Registry},
		{"state-dir", &cc.StateDir},
		{"format", &cc.Format},
		{"log-level", &cc.LogLevel},
		{"log-format", &cc.LogFormat},
	} {
		v, err := cmd.Flags().GetString(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	if !ux.ValidFormat(cc.Format) {
		return nil, fmt.Errorf("unknown format: %s (supported: text, json, yaml)", cc.Format)
	}
	return cc, nil
}

// Print writes data in the selected output format.
func (cc *CommandContext) Print(data interface{}) error {
	return ux.Write(cc.Out, cc.Format, data)
}

// Text reports whether output is human-readable.
func (cc *CommandContext) Text() bool {
	return cc.Format == ux.FormatText || cc.Format == ""
}
