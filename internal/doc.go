// Package internal contains the core implementation packages for rminify.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the rminify CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Daemon settings loaded with Viper, with validation
//   - engine: The sync engine and the per-pair file watches
//   - errors: Structured errors with stable codes
//   - fsutil: Atomic writes and BOM-tolerant reads
//   - logging: Structured logging on top of log/slog
//   - manifest: Pair declarations, their codec and the live manifest store
//   - minify: Razor minifier, stylesheet inliner and esbuild runner
//   - notify: Failure notifications and the websocket hub
//   - validation: Path and subprocess argument checks
//   - watcher: Single-file watching with debouncing
//
// # Inter-Package Communication
//
//   - The manifest store watches its own file and publishes deltas
//   - The engine applies deltas in arrival order and owns one watch per pair
//   - Each watch event runs one minify pass; failures go to a Notifier
//
// # Security Considerations
//
//   - Manifest paths are relative and may not leave the project root
//   - The esbuild path and arguments are checked for shell metacharacters
//   - The notification hub validates the Origin header when origins are configured
package internal
