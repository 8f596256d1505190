// Package scratchdir provides ephemeral, uniquely named working directories
// with an explicit finalize-and-remove step and a recursive copy engine for
// populating them.
//
// A Dir is created under a base directory (os.TempDir by default) with a
// collision-resistant name of the form <prefix>-<random suffix>. Creation
// retries with a fresh suffix when a candidate name already exists, so the
// random source is never assumed to be collision-free.
//
// Copy replicates a source tree into the directory. Symbolic links are never
// followed and never replicated, which also makes cyclic links harmless.
// Copying is fail-fast and not transactional: entries written before the
// first error stay on disk. Repeated copies into one directory are allowed;
// existing destination directories are reused and files overwritten.
//
// Only an explicit Close reports whether removal succeeded. A Dir that is
// abandoned without Close is removed best-effort in the background once the
// handle becomes unreachable; that path reports nothing and swallows errors.
package scratchdir
