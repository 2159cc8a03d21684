package tiercache

import "log"

// Logger is satisfied by *log.Logger. Every component that needs to
// log accepts this interface rather than the concrete stdlib type, so
// callers can plug in their own sink.
type Logger interface {
	Printf(format string, v ...interface{})
}

// ErrorReporter is the non-blocking error reporting hook invoked for
// every reportable failure. It must not be called under any lock the
// cache holds.
type ErrorReporter func(err error, context string)

// defaultReporter logs through l, falling back to the standard
// library's default logger if l is nil.
func defaultReporter(l Logger) ErrorReporter {
	if l == nil {
		l = log.Default()
	}
	return func(err error, context string) {
		l.Printf("tiercache: %s: %v", context, err)
	}
}

// report invokes the current reporter, if any, with err. Safe to call
// concurrently with SetErrorReporter; never call it while c.mu is
// held, since the reporter may call back into the cache or block.
func (c *Cache[K, V]) report(err error, context string) {
	if err == nil {
		return
	}
	if p := c.reporter.Load(); p != nil {
		(*p)(err, context)
	}
}
