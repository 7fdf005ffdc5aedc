// Package cli renders retrieval results for the storyfind command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is the numbered, human-readable list (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
)

// Unknown is printed for missing fields.
const Unknown = "unknown"

// SummaryWidth is the rune budget for the summary in text output.
const SummaryWidth = 200

// ErrEmptyInput is reported when the query is blank; no search is run.
var ErrEmptyInput = errors.New("input is empty: describe the story you are looking for")

// ParseOutputFormat parses a -format flag value.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json, compact)", s)
	}
}

// WarnEmptyInput writes the empty-input warning shown instead of running a search.
func WarnEmptyInput(w io.Writer) {
	fmt.Fprintf(w, "Warning: %v\n", ErrEmptyInput)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(response)
	case OutputCompact:
		for i, result := range response.Results {
			fmt.Fprintln(w, Heading(i+1, result))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d similar stories in %dms\n", len(response.Results), response.QueryTime)
	if response.Refined && response.RefinedQuery != response.Query {
		fmt.Fprintf(w, "Searched for: %s\n", response.RefinedQuery)
	}
	fmt.Fprintln(w)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
}

func writeOneResult(w io.Writer, n int, result *models.SearchResult) {
	fmt.Fprintln(w, Heading(n, result))
	doc := result.Document
	if doc == nil {
		fmt.Fprintln(w)
		return
	}
	if isComic(doc) {
		fmt.Fprintf(w, "   Published: %s\n", doc.FieldString("issue_info", Unknown))
	} else {
		fmt.Fprintf(w, "   Broadcast: %s\n", doc.FieldString("broadcasting_date", Unknown))
	}
	fmt.Fprintf(w, "   Summary: %s\n\n", utils.Truncate(utils.CollapseSpace(doc.Text()), SummaryWidth))
}

// Heading formats "N. title (story: idx, score: 0.1234)"; comic entries also carry the volume.
func Heading(n int, result *models.SearchResult) string {
	doc := result.Document
	if doc == nil {
		return fmt.Sprintf("%d. %s (story: %s, score: %.4f)", n, Unknown, Unknown, result.Score)
	}
	title := doc.FieldString("title", Unknown)
	if isComic(doc) {
		return fmt.Sprintf("%d. %s (story: %s, volume: %s, score: %.4f)", n, title,
			doc.FieldString("story_index", Unknown), doc.FieldString("volume", Unknown), result.Score)
	}
	return fmt.Sprintf("%d. %s (story: %s, score: %.4f)", n, title,
		doc.FieldString("index", Unknown), result.Score)
}

// isComic reports whether doc carries the comic catalogue layout.
func isComic(doc *models.Document) bool {
	for _, key := range []string{"story_index", "volume", "issue_info"} {
		if _, ok := doc.Field(key); ok {
			return true
		}
	}
	return false
}
