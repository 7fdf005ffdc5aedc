package models

import "encoding/json"

// SearchResult is a single retrieved story with its rank and score.
// Score is a distance for the l2 metric (lower is closer) and a similarity for cosine.
type SearchResult struct {
	Rank     int       `json:"rank"`
	Document *Document `json:"-"`
	Score    float64   `json:"score"`
}

type searchResultJSON struct {
	Rank   int            `json:"rank"`
	Text   string         `json:"text"`
	Fields map[string]any `json:"fields"`
	Score  float64        `json:"score"`
}

// MarshalJSON flattens the document into {rank, text, fields, score}.
func (r *SearchResult) MarshalJSON() ([]byte, error) {
	out := searchResultJSON{Rank: r.Rank, Score: r.Score, Fields: map[string]any{}}
	if r.Document != nil {
		out.Text = r.Document.Text()
		out.Fields = r.Document.Fields()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Rank  int     `json:"rank"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	r.Rank = raw.Rank
	r.Score = raw.Score
	r.Document = &doc
	return nil
}

// SearchResponse is the response for a retrieval request.
type SearchResponse struct {
	RequestID    string          `json:"request_id,omitempty"`
	Query        string          `json:"query"`
	RefinedQuery string          `json:"refined_query"`
	Refined      bool            `json:"refined"`
	Metric       string          `json:"metric"`
	Results      []*SearchResult `json:"results"`
	QueryTime    int64           `json:"query_time_ms"`
}
