package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/coagent/agent"
)

func newChatCmd(a *app) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Stream a single chat reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newModel(a.cfg.Model, a.logger)
			actx := agent.NewContext(m, func(o *agent.ContextOptions) {
				o.SystemPrompt = system
				o.Timeout = a.cfg.Model.Timeout
				o.ModelOptions.Temperature = a.cfg.Model.Temperature
				o.ModelOptions.MaxTokens = a.cfg.Model.MaxTokens
				o.Logger = a.logger
			})

			stream := actx.StreamChat(cmd.Context(), strings.Join(args, " "))
			defer stream.Close()

			for chunk := range stream.Seq(cmd.Context()) {
				fmt.Fprint(a.out, chunk)
			}
			fmt.Fprintln(a.out)
			return stream.Err()
		},
	}

	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt")
	return cmd
}
