/*
Package types defines the shared data model for Burrow: content and
changeset identifiers, changesets with their file-changes maps, and the
repository identifiers used by the cross-repo machinery.

Changeset identity is content-addressed: Changeset.ID digests a canonical
length-prefixed serialization of the commit tuple, so two byte-equal
changesets always carry the same ID regardless of where they were built.
*/
package types
