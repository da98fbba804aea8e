// Package storage provides the byte-level persistence collaborators the
// store writes snapshots through. Two backends implement the same
// contract: plain files with atomic replace semantics, and a SQLite blob
// table for sessions that keep everything in one database file.
package storage

// Backend reads and writes opaque byte blobs by path.
type Backend interface {
	// Read returns the blob stored at path. A missing path is reported
	// with an error wrapping fs.ErrNotExist.
	Read(path string) ([]byte, error)
	// Write stores data at path, replacing any previous content. A
	// reader never observes a partial write.
	Write(path string, data []byte) error
	// Exists reports whether path currently holds a blob.
	Exists(path string) (bool, error)
}
