package logger

import "go.uber.org/zap"

// Field constructors, aliased so engine code never imports zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
	Strings  = zap.Strings
	Stringer = zap.Stringer
)
