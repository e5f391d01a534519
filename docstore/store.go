// Package docstore reads and writes whole JSON documents held in a remote
// versioned file store.
//
// Every mutation in the system is a full read-modify-write of one document.
// The backend hands out an opaque version token on Read and requires it on
// Write, so a writer holding a stale token is rejected with a store conflict
// instead of silently overwriting someone else's change. The read and the
// write are not atomic: callers are expected to run with at most one
// concurrent writer per document.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aivoicefromthevoid/mira/fault"
)

// Blob is the raw content of a document and the token identifying its version.
type Blob struct {
	Data    []byte
	Version string
}

// Store is the narrow contract every backend implements.
type Store interface {
	// Read returns the document at path. A missing document is not an
	// error: Read returns (nil, nil).
	Read(ctx context.Context, path string) (*Blob, error)

	// Write replaces the document at path and returns the new version token.
	// When version is empty the backend looks up the current token right
	// before writing (best-effort, not atomic). A stale token fails with a
	// fault.KindStoreConflict error.
	Write(ctx context.Context, path string, data []byte, message, version string) (string, error)
}

// Historian is implemented by backends that can list the commit messages
// written for a document, oldest first.
type Historian interface {
	History(ctx context.Context, path string) ([]string, error)
}

// ReadJSON reads and decodes the document at path. When the document does not
// exist, the value returned by def is used and the version is empty.
func ReadJSON[T any](ctx context.Context, s Store, path string, def func() T) (T, string, error) {
	blob, err := s.Read(ctx, path)
	if err != nil {
		var zero T
		return zero, "", err
	}
	if blob == nil {
		return def(), "", nil
	}

	doc := def()
	if err := json.Unmarshal(blob.Data, &doc); err != nil {
		var zero T
		return zero, "", fault.StoreUnavailable(fmt.Sprintf("decode %s", path), err).
			WithHint(fmt.Sprintf("The document at %s is not valid JSON. Fix or remove it in the backing store.", path))
	}
	return doc, blob.Version, nil
}

// WriteJSON encodes doc as indented JSON and writes it to path.
func WriteJSON[T any](ctx context.Context, s Store, path string, doc T, message, version string) (string, error) {
	data, err := Encode(doc)
	if err != nil {
		return "", fault.StoreUnavailable(fmt.Sprintf("encode %s", path), err)
	}
	return s.Write(ctx, path, data, message, version)
}

// Encode renders doc the way documents are laid out on disk: two-space
// indentation, no HTML escaping, no trailing newline.
func Encode(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
