// Package logx is a small structured-logging facade over zerolog.
//
// Services hold a Logger by value; loggers created from a Service stay live
// across config reloads (Apply swaps the sinks underneath). The zero value
// is a safe no-op logger.
package logx
