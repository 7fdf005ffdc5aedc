package models

import "strings"

// SearchQuery is a retrieval request: a free-text query and the number of stories to return.
type SearchQuery struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Normalize trims the query, fills K with defaultK when unset, and caps it at maxK.
// A negative K is left untouched so the engine can reject it.
func (q *SearchQuery) Normalize(defaultK, maxK int) {
	q.Query = strings.TrimSpace(q.Query)
	if q.K == 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
}
