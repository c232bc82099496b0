// Package logging configures log/slog for amanctx. Logs are JSON lines
// written to a size-rotated file under ~/.amanctx/logs/, optionally mirrored
// to stderr. The MCP server runs file-only because stdout and stderr belong to
// the JSON-RPC stream.
package logging
