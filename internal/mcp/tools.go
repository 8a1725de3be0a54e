package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the question or phrase to find passages for"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of passages, default from server config"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"similarity cutoff between 0 and 1; passages below it are dropped"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []PassageOutput `json:"results" jsonschema:"passages, best match first"`
	Count   int             `json:"count"`
}

// PassageOutput is one retrieved chunk.
type PassageOutput struct {
	Source  string  `json:"source" jsonschema:"document the passage was taken from"`
	Ordinal int     `json:"ordinal" jsonschema:"position of the chunk within its document"`
	Score   float64 `json:"score" jsonschema:"similarity between 0 and 1"`
	Text    string  `json:"text"`
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"question to answer from the ingested documents"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer      string          `json:"answer"`
	Grounded    bool            `json:"grounded" jsonschema:"false when no passage was relevant enough and the answer is a refusal"`
	Sources     []PassageOutput `json:"sources"`
	TotalTokens int             `json:"total_tokens,omitempty"`
}

// IndexStatusInput takes no arguments.
type IndexStatusInput struct{}

// IndexStatusOutput describes the index the server answers from.
type IndexStatusOutput struct {
	Ready       bool          `json:"ready" jsonschema:"true when at least one passage is stored"`
	Records     int           `json:"records"`
	Store       string        `json:"store"`
	Embeddings  EmbeddingInfo `json:"embeddings"`
	Completion  string        `json:"completion_model,omitempty"`
	RetrievalK  int           `json:"retrieval_k"`
	MinScore    float64       `json:"min_score"`
	ServerError string        `json:"error,omitempty"`
}

// EmbeddingInfo names the embedding model queries are embedded with.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}
