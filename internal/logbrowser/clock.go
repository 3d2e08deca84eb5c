package logbrowser

import "time"

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock schedules the debounce timer
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by the time package
var RealClock Clock = realClock{}
