// Package config carries the Store's tunables, mirroring the teacher's
// pkg/cowbtree.NodeConfig / NewCowVersionedStoreWithConfig pattern:
// a plain options struct plus functional Option setters, rather than a
// flag/env parsing framework, because this module is a library
// embedded in a host application, not a standalone service.
package config

// Config holds the Version Chain Store's configuration.
type Config struct {
	// DatabaseName is the logical database name the KV engine is
	// expected to represent (spec.md section 6: default "tactical_db").
	// It is informational for in-process engines and meaningful for
	// engines that key off a name (e.g. a file path derived from it).
	DatabaseName string

	// GCLogEvery, when positive, makes the Store emit a Debug log line
	// for every Nth record it removes (removals by Push, Commit and
	// Abandon all count), naming that record's chain and version; 1 logs
	// every removal. Zero or a negative value disables these lines.
	GCLogEvery int
}

// Option mutates a Config during construction.
type Option func(*Config)

// Default returns the module's default configuration.
func Default() Config {
	return Config{DatabaseName: "tactical_db", GCLogEvery: 1}
}

// WithDatabaseName overrides the configured database name.
func WithDatabaseName(name string) Option {
	return func(c *Config) { c.DatabaseName = name }
}

// WithGCLogEvery overrides how often garbage-collection summaries are
// logged.
func WithGCLogEvery(n int) Option {
	return func(c *Config) { c.GCLogEvery = n }
}

// Apply builds a Config starting from Default and applying opts in
// order.
func Apply(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
