package main

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/coagent/config"
	"github.com/hupe1980/coagent/logging"
	"github.com/hupe1980/coagent/model"
	"github.com/hupe1980/coagent/model/anthropic"
	"github.com/hupe1980/coagent/model/openai"
)

// newModel builds the configured provider. Without an API key the mock
// model is used so the CLI stays usable offline.
func newModel(cfg config.ModelConfig, logger logging.Logger) model.Model {
	provider := cfg.Provider
	if provider != "mock" && cfg.APIKey == "" {
		logging.OrNoOp(logger).Warn("cli.model.fallback", "provider", provider, "reason", "no api key")
		provider = "mock"
	}

	switch provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		})
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		})
	default:
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, "mock")
	}
}
