// Package logging provides structured logging with context propagation for
// graph execution, wrapping log/slog.
//
// # Overview
//
// Logger wraps *slog.Logger with chain builders (WithGraphName,
// WithExecutionID, WithNodeName, WithNodeType, WithField/WithFields,
// WithError) that attach structured fields without mutating the receiver —
// each With* call returns a new *Logger sharing the same underlying slog
// handler.
//
// # Basic usage
//
//	logger := logging.New(logging.DefaultConfig())
//	log := logger.WithGraphName("pipeline-a").WithExecutionID(execID)
//	log.Info("graph execution started")
//	log.WithNodeName("fetch").WithNodeType("http").Debug("node execution started")
//
// # ErrorThrow
//
// ErrorThrow logs at ERROR and returns the same message as an error in one
// call, mirroring the pattern the C++ original expressed with a logging
// macro that both logs and throws:
//
//	if cond {
//		return log.ErrorThrow("invalid setting %q on node %q", key, name)
//	}
//
// # Context
//
// WithContext/FromContext store and retrieve a *Logger on a
// context.Context for call paths that don't thread one through explicitly.
package logging
