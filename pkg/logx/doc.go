// Package logx configures trendbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp and caller)
//   - File output JSON-structured
//   - An optional chat sink (min-level + rate limiting) for the ops channel
package logx
