// Package logging configures structured JSON logging for Blueband.
//
// Logs are written through log/slog with a size-rotating file writer,
// optionally mirrored to stderr. Events use snake_case names with typed
// attributes so they can be filtered and aggregated downstream.
package logging
