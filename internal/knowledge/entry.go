// Package knowledge provides the knowledge store: content-addressed entries
// with embedding vectors and brute-force nearest-neighbor retrieval.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is a single knowledge-store record. ID is derived from subject and
// content, so re-ingesting identical material is idempotent.
type Entry struct {
	ID        string    `db:"id"`
	Subject   string    `db:"subject"`
	Content   string    `db:"content"`
	Source    string    `db:"source"`
	Embedding []float32 `db:"-"`
	CreatedAt time.Time `db:"created_at"`
}

// Result pairs a retrieved entry with its cosine distance from the query.
type Result struct {
	Entry    Entry
	Distance float64
}

// EntryID computes the content-derived identifier for an entry:
// the hex SHA-256 digest of the subject and content joined by a newline.
func EntryID(subject, content string) string {
	sum := sha256.Sum256([]byte(subject + "\n" + content))
	return hex.EncodeToString(sum[:])
}
