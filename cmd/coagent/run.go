package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/coagent/agent"
	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/tool"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		output   string
		feedback bool
		verbose  bool
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task through an agent with the built-in tools",
		Long: `Run one task through an actor agent with the calculator and current_time
tools. With --strategy an autonomous agent plans the task instead, using one
of zero_shot, tree_of_thought, plan_and_execute, reflexion or react.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			m := newModel(a.cfg.Model, a.logger)

			actx := agent.NewContext(m, func(o *agent.ContextOptions) {
				o.Tools = []tool.Tool{tool.NewCalculatorTool(), tool.NewCurrentTimeTool()}
				o.Timeout = a.cfg.Model.Timeout
				o.ModelOptions.Temperature = a.cfg.Model.Temperature
				o.ModelOptions.MaxTokens = a.cfg.Model.MaxTokens
				o.Logger = a.logger
			})

			reader := bufio.NewReader(a.in)
			var fb interface{ ProvideFeedback(string) bool }
			hooks := agent.Hooks{
				OnFeedbackRequest: func(message string, _ map[string]any) {
					fmt.Fprintf(a.errOut, "%s [y/N] ", message)
					line, _ := reader.ReadString('\n')
					fb.ProvideFeedback(strings.TrimSpace(line))
				},
			}
			if verbose {
				hooks.OnStep = func(desc string, result any) {
					fmt.Fprintf(a.errOut, "step: %s: %v\n", desc, result)
				}
			}

			var worker core.Agent
			if strategy != "" {
				ps, err := agent.ParsePlanningStrategy(strategy)
				if err != nil {
					return err
				}
				auto := agent.NewAutonomousAgent("coagent", actx, func(o *agent.AutonomousOptions) {
					o.Strategy = ps
					o.MaxIterations = a.cfg.Agent.MaxIterations
					o.MaxConsecutiveErrors = a.cfg.Agent.MaxConsecutiveErrors
					o.HumanFeedback = feedback || a.cfg.Agent.HumanFeedback
					o.Hooks = hooks
				})
				fb, worker = auto, auto
			} else {
				actor := agent.NewActorAgent("coagent", actx, func(o *agent.ActorOptions) {
					o.MaxIterations = a.cfg.Agent.MaxIterations
					o.MaxConsecutiveErrors = a.cfg.Agent.MaxConsecutiveErrors
					o.RunInterval = a.cfg.Agent.RunInterval
					o.QueueSize = a.cfg.Agent.QueueSize
					o.HumanFeedback = feedback || a.cfg.Agent.HumanFeedback
					o.Hooks = hooks
				})
				fb, worker = actor, actor
			}
			defer worker.Stop()

			res, err := async.BlockingWaitContext(cmd.Context(), worker.Run(cmd.Context(), task))
			if err != nil {
				return err
			}
			return writeResult(a.out, output, res)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	cmd.Flags().BoolVar(&feedback, "feedback", false, "ask for approval before each tool call")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each step to stderr")
	cmd.Flags().StringVar(&strategy, "strategy", "", "run an autonomous agent with this planning strategy")
	return cmd
}
