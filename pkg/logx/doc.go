// Package logx configures mtcbot's structured logging.
//
// logx.Logger is a thin wrapper over zerolog that keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional operator-chat sink (min-level + rate limited)
package logx
