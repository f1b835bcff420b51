// Package config provides configuration management for the dagflow graph
// engine.
//
// # Overview
//
// The config package centralizes engine tunables — execution timeouts,
// parallel-scheduler poll interval and concurrency, and graph size limits —
// behind a single struct with validation and environment-style
// constructors.
//
// # Basic Usage
//
//	import "github.com/kestrelflow/dagflow/pkg/config"
//
//	cfg := config.Default()
//	if err := cfg.Validate(); err != nil {
//		// handle invalid configuration
//	}
//
// # Profiles
//
// Default, Development, Production, and Testing each return an independent
// *Config derived from Default with fields overridden for that profile;
// mutating one does not affect another.
//
// # Thread Safety
//
// Config values are read-only once constructed; Clone returns an
// independent copy for callers that need to tweak one field without
// disturbing a shared instance.
package config
