// Package testutil contains helpers shared by tests across packages:
// a fluent ResponseBuilder for model responses and ScriptedModel, which
// replays a fixed conversation through model.MockModel. Not intended for
// production usage.
package testutil
