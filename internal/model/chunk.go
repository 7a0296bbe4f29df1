package model

import "fmt"

type Chunk struct {
	ChunkID     string    `json:"chunk_id"`
	SourceID    string    `json:"source_id"`
	Ordinal     int       `json:"ordinal"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	Category    string    `json:"category"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// ScoredChunk is one entry of a retrieval result. Score is cosine similarity.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

func ChunkID(sourceID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", sourceID, ordinal)
}

func ChunkTexts(items []ScoredChunk) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Chunk.Text)
	}
	return out
}
