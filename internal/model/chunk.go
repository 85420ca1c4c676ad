package model

// Chunk is a window of fulltext content stored in the vector namespace.
type Chunk struct {
	EntryID    string `json:"entry_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type ChunkMatch struct {
	Chunk
	Score float32 `json:"score"`
}

type IndexStatus string

const (
	IndexPending  IndexStatus = "pending"
	IndexIndexed  IndexStatus = "indexed"
	IndexDegraded IndexStatus = "degraded"
	IndexDisabled IndexStatus = "disabled"

	// IndexRemoved is reported, never stored: the entry was deleted while
	// its chunks were being written.
	IndexRemoved IndexStatus = "removed"
)

type IndexState struct {
	EntryID    string      `json:"entry_id"`
	Status     IndexStatus `json:"status"`
	ChunkCount int         `json:"chunk_count"`
	LastError  string      `json:"last_error"`
	Mtime      int64       `json:"mtime"`
}
