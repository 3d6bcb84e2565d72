package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			info := version.GetInfo()
			if !cc.Text() || verbose {
				if cc.Text() {
					return cc.Print(info.String())
				}
				return cc.Print(info)
			}
			return cc.Print("docflow " + info.Short())
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed version information")
	return cmd
}
