package tiercache

import "context"

// Option configures a Cache at construction using the functional-
// options pattern.
type Option[K comparable, V any] func(*Cache[K, V]) error

// WithFetch sets the fetch callback invoked by the async read path
// when a key misses every configured tier. fetch should return
// (value, found, err); found=false with a nil error means "no such
// value", a terminal miss.
func WithFetch[K comparable, V any](fetch func(ctx context.Context, key K) (V, bool, error)) Option[K, V] {
	return func(c *Cache[K, V]) error {
		c.fetch = fetch
		return nil
	}
}

// WithLogger sets the Logger used by the default ErrorReporter. Has
// no effect if WithReporter is also given.
func WithLogger[K comparable, V any](l Logger) Option[K, V] {
	return func(c *Cache[K, V]) error {
		c.logger = l
		return nil
	}
}

// WithReporter overrides the ErrorReporter hook entirely.
func WithReporter[K comparable, V any](reporter ErrorReporter) Option[K, V] {
	return func(c *Cache[K, V]) error {
		c.reporter.Store(&reporter)
		return nil
	}
}

// SetErrorReporter swaps the cache's error reporting hook at runtime.
// Safe for concurrent use with Get/Set/GetAsync/ClearAsync: the
// reporter is stored behind an atomic pointer, not c.mu, since it is
// read from call paths that intentionally run without the lock held.
func (c *Cache[K, V]) SetErrorReporter(reporter ErrorReporter) {
	c.reporter.Store(&reporter)
}
