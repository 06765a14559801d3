// Package fileid derives stable document IDs from file paths, so a PDF
// dropped into a watched directory keeps its identity across re-writes and
// can be deleted from the index by path alone.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Prefix marks path-derived document IDs, distinguishing them from IDs
// assigned through the API.
const Prefix = "pdf-"

// FileDocID returns the document ID for the given path. The path is cleaned
// first, so lexically equivalent spellings of the same path agree. Callers
// should pass absolute paths; relative paths are deterministic but depend on
// the working directory they were resolved against.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	// 16 bytes of the digest keeps IDs short enough for log lines and URLs
	// while leaving collisions out of practical reach.
	return Prefix + hex.EncodeToString(sum[:16])
}
