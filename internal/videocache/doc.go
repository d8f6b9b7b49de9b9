// Package videocache maps video ids to fully downloaded local files.
//
// Resolve returns a cached file without touching the network when one is on
// disk, and otherwise downloads it. Downloads for the same id are joined
// into one flight; every waiter receives the same result. A download lands
// in a private directory under <cache_dir>/.partial and is renamed into place
// only once complete, so a failure never leaves a catalog entry or a file
// behind.
//
// # Size Management
//
// The cache enforces a size budget (cache.max_gib) by pruning the oldest
// fetched entries after each download, and refuses to start a download when
// the volume has less than cache.min_free_mib free. Manual pruning is
// available via `vidkiosk cache prune`.
package videocache
