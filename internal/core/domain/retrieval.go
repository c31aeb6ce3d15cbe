package domain

// Retrieval modes, ordered from the richest tier to the always-available one.
const (
	RetrievalModeVector     = "vector"
	RetrievalModeLexical    = "lexical"
	RetrievalModeBruteForce = "bruteforce"
)

// Embedding task types understood by the embedding collaborator.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type DocumentMeta struct {
	DocID      string `json:"docId"`
	DocTitle   string `json:"docTitle"`
	SourcePath string `json:"sourcePath"`
}

// Chunk is a retrievable unit of document text. Retrievers hand out copies, so
// setting Score never touches the registry a retriever was built from.
type Chunk struct {
	ChunkID string       `json:"chunkId"`
	Text    string       `json:"text"`
	Meta    DocumentMeta `json:"meta"`
	Score   float64      `json:"score,omitempty"`
}

type Citation struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Citations projects chunks to citations deduplicated by document title,
// keeping first-seen order.
func Citations(chunks []Chunk) []Citation {
	out := make([]Citation, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		title := chunk.Meta.DocTitle
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, Citation{
			ID:    chunk.ChunkID,
			Title: title,
			Score: chunk.Score,
		})
	}
	return out
}
