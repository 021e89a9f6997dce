package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/coagent/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			info := version.Get()
			switch output {
			case "json":
				s, err := info.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, s)
			case "yaml":
				b, err := yaml.Marshal(info)
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, string(b))
			case "short":
				fmt.Fprintln(a.out, info.String())
			case "", "text":
				fmt.Fprintln(a.out, info.Text())
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json, yaml or short")
	return cmd
}
