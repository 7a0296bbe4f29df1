package model

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	ContentTypeText     = "text"
	ContentTypeMarkdown = "markdown"
	ContentTypePDF      = "pdf"
)

// Document is one unit of raw input. Re-ingesting the same SourceID replaces
// everything previously stored for it.
type Document struct {
	SourceID    string `json:"source_id"`
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	ContentHash string `json:"content_hash"`
	CollectedAt int64  `json:"collected_at"`
}

func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
