package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Fixed returns a NowFunc pinned to the supplied instant.
func Fixed(t time.Time) func() time.Time { return func() time.Time { return t } }
