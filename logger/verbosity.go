package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels for the CLI -v count
const (
	VerbosityUser  = 0 // tables and errors only
	VerbosityInfo  = 1 // -v: tracked writes, batch summaries
	VerbosityDebug = 2 // -vv: backend opens, skipped lineage references, storage operation counts
)

// VerbosityToLevel maps the -v count to a zap level: warn, info, then debug
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
