// Package source fetches deregistration batch files from the transport
// agency's FTP drop. Files are listed by glob pattern, fetched whole, and
// deleted once a durable archival copy exists.
package source

import "context"

// Source is the pipeline's view of the remote file drop. Implemented by the
// FTP client and by in-memory doubles in pipeline tests.
type Source interface {
	// List returns the names of files matching the configured pattern.
	List(ctx context.Context) ([]string, error)

	// Fetch reads a remote file's full contents. Batch files are small
	// enough (tens of thousands of rows) to hold in memory.
	Fetch(ctx context.Context, filename string) ([]byte, error)

	// Delete removes the remote file. Called as soon as the archival copy is
	// durable, so a retried invocation does not reprocess the file.
	Delete(ctx context.Context, filename string) error
}
