package model

type IngestState string

const (
	IngestStateIdle       IngestState = "idle"
	IngestStateExtracting IngestState = "extracting"
	IngestStateChunking   IngestState = "chunking"
	IngestStateEmbedding  IngestState = "embedding"
	IngestStateStoring    IngestState = "storing"
	IngestStateFailed     IngestState = "failed"
)

type DocumentStatus string

const (
	DocumentIndexed   DocumentStatus = "indexed"
	DocumentUnchanged DocumentStatus = "unchanged"
	DocumentFailed    DocumentStatus = "failed"
)

type DocumentReport struct {
	SourceID string         `json:"source_id"`
	Status   DocumentStatus `json:"status"`
	Stage    IngestState    `json:"stage,omitempty"`
	Chunks   int            `json:"chunks"`
	Error    string         `json:"error,omitempty"`
}

// IngestReport separates "no documents" from "N documents, M failed".
type IngestReport struct {
	Source    string           `json:"source"`
	State     IngestState      `json:"state"`
	Started   int64            `json:"started"`
	Finished  int64            `json:"finished"`
	Documents []DocumentReport `json:"documents"`
}

func (r *IngestReport) count(status DocumentStatus) int {
	n := 0
	for _, item := range r.Documents {
		if item.Status == status {
			n++
		}
	}
	return n
}

func (r *IngestReport) Indexed() int   { return r.count(DocumentIndexed) }
func (r *IngestReport) Unchanged() int { return r.count(DocumentUnchanged) }
func (r *IngestReport) Failed() int    { return r.count(DocumentFailed) }

func (r *IngestReport) Chunks() int {
	n := 0
	for _, item := range r.Documents {
		n += item.Chunks
	}
	return n
}
