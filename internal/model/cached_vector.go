package model

// CachedVector is one persisted embedding, keyed by model, task type and
// the sha256 of the embedded text.
type CachedVector struct {
	ModelName   string
	TaskType    string
	ContentHash string
	Vector      []float32
	Ctime       int64
}
