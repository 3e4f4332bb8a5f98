/*
Package xrepo implements cross-repo commit synchronization between a large
repository and its small partners.

For each source changeset the InMemorySyncer computes a plan — rewritten,
working-copy equivalence, or not a sync candidate — by applying the
version's path mover to the file-changes map, remapping parents through
their already-resolved outcomes, and enforcing the merge-direction and
version-agreement rules. Plans are pure; persistence is a separate,
idempotent step that stores the rewritten changeset and upserts the
mapping row.

The Driver runs batches in topological order with polled cancellation and
retried persistence. Sync versions (mover, submodule action, pushrebase
bookmarks) are named, immutable configurations loaded from YAML manifests.
*/
package xrepo
