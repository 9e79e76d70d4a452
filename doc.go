// Package narstore is a read-side access layer over a content-addressable
// object store whose objects form a dependency graph via reference sets.
//
// A Store wraps an opaque backend (local store directory with a sqlite
// metadata database, or anything else implementing the backend contract)
// and exposes three hot-path operations: per-object metadata lookup,
// transitive closure computation over the reference graph, and streaming
// NAR export of an object's filesystem tree.
//
// Basic usage:
//
//	store, _ := narstore.Open()
//	defer store.Close()
//
//	sp, _ := narstore.ParseStorePath("ia70ss13m22znbl8khrf2hq72qmh5drr-ruby-2.7.5")
//
//	// Metadata lookup
//	info, _ := store.QueryPathInfo(ctx, sp)
//	fmt.Println(info.NarHash, info.NarSize, info.References)
//
//	// Transitive closure (runtime dependencies)
//	closure, _ := store.Closure(ctx, sp, narstore.ClosureQuery{})
//
//	// Reverse closure (who depends on this path)
//	refs, _ := store.Closure(ctx, sp, narstore.ClosureQuery{Direction: narstore.DirectionReverse})
//
//	// NAR export
//	r := store.NarReader(ctx, sp)
//	defer r.Close()
//	io.Copy(dst, r)
//
// Export bridges a blocking producer to a possibly-async consumer through a
// bounded Sink: the producer suspends when the consumer lags, and consumer
// cancellation aborts serialization at the next chunk boundary.
package narstore
