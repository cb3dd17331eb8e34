package driver

import (
	"io"
	"time"
)

type WorldDriverOpt func(*WorldDriver)

// WithTickLength sets the interval used by jobs that do not set their own.
func WithTickLength(tickLength time.Duration) WorldDriverOpt {
	return func(d *WorldDriver) {
		d.tickLength = tickLength
	}
}

func WithStopTimeout(timeout time.Duration) WorldDriverOpt {
	return func(d *WorldDriver) {
		d.stopTimeout = timeout
	}
}

// WithCloser closes c after the final run of jobs, for resources the jobs write to.
func WithCloser(c io.Closer) WorldDriverOpt {
	return func(d *WorldDriver) {
		d.closers = append(d.closers, c)
	}
}
