// Package logging configures structured slog output for legalwise.
//
// Logs are JSON lines written to a size-rotated file under ~/.legalwise/logs/.
// When serving MCP over stdio, stdout carries JSON-RPC exclusively, so the
// file is the only sink; other commands also mirror to stderr.
package logging
