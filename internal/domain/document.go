package domain

// SourceMetadata identifies where a piece of text came from.
type SourceMetadata struct {
	Path     string `json:"source"`
	Page     int    `json:"page,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Document is one decoded text source. A PDF yields one Document per page.
type Document struct {
	ID      string
	Content string
	Source  SourceMetadata
}

// Chunk is a bounded slice of a Document used as the retrieval unit.
type Chunk struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Text       string         `json:"text"`
	Index      int            `json:"index"`
	Overlap    int            `json:"overlap"`
	Source     SourceMetadata `json:"source"`
}

// SizeBytes returns the UTF-8 byte length of the chunk text.
func (c Chunk) SizeBytes() int { return len(c.Text) }

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SkippedFile records a source that could not be ingested.
type SkippedFile struct {
	Path   string
	Reason string
}

// LoadReport is the outcome of one ingestion batch.
type LoadReport struct {
	Documents []Document
	Skipped   []SkippedFile
}

// IndexMetadata is persisted next to a saved index as embedding_info.json.
type IndexMetadata struct {
	ModelName string `json:"model_name"`
	SavedPath string `json:"saved_path"`
}
