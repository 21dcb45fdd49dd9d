// Package logx configures pluginlister's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink (min-level + rate limiting) that forwards
//     warnings to an operator chat through a transport adapter
package logx
