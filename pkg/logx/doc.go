// Package logx configures greetbot's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog and keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink that mirrors warnings to an operator chat
package logx
