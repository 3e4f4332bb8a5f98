/*
Package pack implements the delta-dictionary pack format and the storage
envelope that frames every blob written to the underlying key/value store.

A pack is an ordered, immutable grouping of blobs. The first blob is stored
as plain zstd; each later blob may be compressed using the plaintext of an
earlier entry as a zstd dictionary, which makes runs of near-identical
blobs (file revisions, manifests) very cheap. Within a pack a dictionary
entry always precedes the entries that reference it, so decoding is a
bounded walk down the chain.

The pack's identity is a domain-separated hash of its sorted member keys:
two packs holding the same member set get the same key regardless of how
their delta chains are arranged.
*/
package pack
