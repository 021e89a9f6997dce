// Package config loads runtime settings from defaults, an optional config
// file, .env files and COAGENT_* environment variables.
//
//	cfg, err := config.Load(func(o *config.LoadOptions) {
//	    o.ConfigFile = "coagent.yaml"
//	})
//
// Provider API keys fall back to OPENAI_API_KEY or ANTHROPIC_API_KEY when
// model.api_key is unset. Watch reloads the config file on change.
package config
