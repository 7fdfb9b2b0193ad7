// Package kfmt provides the kernel's structured logger. Output produced
// before a console is attached is retained in a ring buffer and replayed once
// SetOutputSink is called.
package kfmt

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// earlyPrintBuffer stores log output before an output sink is set.
	earlyPrintBuffer ringBuffer

	sink   = &sinkWriter{}
	logger = newLogger(sink)
)

// sinkWriter routes log output to the early ring buffer or to the
// registered output sink.
type sinkWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out == nil {
		return earlyPrintBuffer.Write(p)
	}
	return s.out.Write(p)
}

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
		DisableSorting:   false,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutputSink sets the target for all log output to w and copies any data
// accumulated in the early ring buffer to it. Passing nil routes output back
// to the ring buffer.
func SetOutputSink(w io.Writer) {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	sink.out = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// SetLevel adjusts the verbosity of the kernel logger.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// Logger returns a log entry tagged with the supplied kernel module name.
func Logger(module string) *logrus.Entry {
	return logger.WithField("module", module)
}
