// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout (text or json) and to the systemd journal when journald
// is running. Every module gets its own *slog.Logger carrying a "module"
// attribute and a LevelVar, so levels can change at runtime:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"capture": "debug"},
//	})
//	logger := logging.GetLogger("capture")
//
// Journal entries are tagged with the camkeep syslog identifier and carry
// attributes as upper-case fields:
//
//	journalctl -t camkeep MODULE=capture -f
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	capture = "debug"
//	api = "warn"
package logging
