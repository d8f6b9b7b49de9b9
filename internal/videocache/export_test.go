package videocache

// WithStatfs stubs filesystem stats for tests.
func WithStatfs(fn func(path string) (uint64, uint64, error)) Option {
	return func(r *Resolver) {
		r.statfs = fn
	}
}
