// Package model defines the provider-agnostic text generation interface used
// by the gateway, plus test helpers (MockModel, FuncModel).
//
// Providers live in sub-packages (ollama, openai, anthropic, gemini, bedrock)
// and implement Model so agents and the engine stay decoupled from vendor
// SDKs. Providers report HTTP status failures as *StatusError so callers can
// render status and body uniformly.
package model
