// Package logging provides file-based structured logging with rotation for
// DIRC. Logs are JSON (log/slog) and go to a size-rotated file under the
// data directory; stderr mirroring is optional and disabled automatically
// in MCP serve mode, where stdout/stderr belong to the JSON-RPC stream.
package logging
