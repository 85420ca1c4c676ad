package model

type SearchHit struct {
	EntryID string  `json:"entry_id"`
	Title   string  `json:"title"`
	Section Section `json:"section"`
	Page    int     `json:"page"`
	Snippet string  `json:"snippet"`
}

type SemanticHit struct {
	EntryID    string  `json:"entry_id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Section    Section `json:"section"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type KeywordQuery struct {
	Query   string
	EntryID string
	Section Section
	Limit   int
}
