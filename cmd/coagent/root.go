package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/coagent/config"
	"github.com/hupe1980/coagent/logging"
)

type globalFlags struct {
	configFile string
	provider   string
	model      string
	logLevel   string
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	flags  globalFlags
	cfg    *config.Config
	logger logging.Logger
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "coagent",
		Short:         "Run LLM actor agents with tools, streaming and human feedback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.StringVar(&a.flags.provider, "provider", "", "model provider: openai, anthropic or mock")
	pf.StringVarP(&a.flags.model, "model", "m", "", "model name")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newRunCmd(a),
		newChatCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) load() error {
	overrides := map[string]any{}
	if a.flags.provider != "" {
		overrides["model.provider"] = a.flags.provider
	}
	if a.flags.model != "" {
		overrides["model.name"] = a.flags.model
	}
	if a.flags.logLevel != "" {
		overrides["log.level"] = a.flags.logLevel
	}

	cfg, err := config.Load(func(o *config.LoadOptions) {
		o.ConfigFile = a.flags.configFile
		o.Overrides = overrides
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger := cfg.NewLogger(a.errOut).WithComponent("cli")
	a.logger = logger
	if a.flags.configFile != "" {
		return cfg.Watch(func(_, next config.Config) {
			if level, err := logging.ParseLevel(next.Log.Level); err == nil {
				logger.SetLevel(level)
			}
		})
	}
	return nil
}
