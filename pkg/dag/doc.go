/*
Package dag maintains the lazy segmented commit graph: an injective
assignment of 64-bit integer IDs to DAG vertexes that preserves
topological order and keeps branch IDs contiguous.

AssignHead is the entry point: it walks the ancestors of a head with an
explicit heap work-list, reuses existing assignments, respects a
caller-supplied covered set and reserved set, and emits the flat segments
to append to the persistent segment list. IDs carry their group (master or
non-master) in the high byte, so master history always sorts first.

The IdMap may be remote; lookups are bounded by a max group so a lazy
implementation can avoid round-trips when a local answer suffices.
*/
package dag
