/*
Package blobstore implements Burrow's content-addressed blob storage.

The Store wraps a RawStore (BoltDB in production, in-memory for tests) with
the pack codec from pkg/pack: single blobs are zstd-compressed with a raw
fallback, and related blobs can be grouped into packs whose later entries
are dictionary-compressed against earlier ones. Pack members are reachable
through link records, and reads report size metadata covering the blob's
whole dictionary chain.

Keys may carry a repository prefix; the prefix is stripped when a key
enters a pack and honored again on lookup.
*/
package blobstore
