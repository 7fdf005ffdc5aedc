package corpus

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/storyfind/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertComic(t *testing.T, docs []*models.Document) {
	t.Helper()
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].Text() != "A robot arrives from the future." {
		t.Errorf("text[0] = %q", docs[0].Text())
	}
	if v, _ := docs[0].Field("story_index"); v != int64(1) {
		t.Errorf("story_index = %#v, want int64(1)", v)
	}
	if v, ok := docs[1].Field("issue_info"); !ok || v != nil {
		t.Errorf("issue_info = %#v, %v; want nil, true", v, ok)
	}
	if _, ok := docs[0].Field("text"); ok {
		t.Error("text column should not be copied into fields")
	}
	if got := docs[1].FieldString("title", ""); got != "Lost at Sea" {
		t.Errorf("title[1] = %q", got)
	}
}

func TestLoad_JSONL(t *testing.T) {
	path := writeFile(t, "stories.jsonl", `{"text":"A robot arrives from the future.","title":"Future Visit","story_index":1,"volume":1,"issue_info":"1970-01"}

{"text":"A cat is lost at sea.","title":"Lost at Sea","story_index":2,"volume":1,"issue_info":null}
`)
	docs, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	assertComic(t, docs)
}

func TestLoad_JSONArray(t *testing.T) {
	path := writeFile(t, "stories.json", `[
 {"summary":"A robot arrives from the future.","title":"Future Visit","story_index":1,"issue_info":"x"},
 {"summary":"A cat is lost at sea.","title":"Lost at Sea","story_index":2,"issue_info":null, "rating": 4.5}
]`)
	docs, err := Load(context.Background(), path, Options{TextField: "summary"})
	if err != nil {
		t.Fatal(err)
	}
	assertComic(t, docs)
	if got := docs[1].FieldString("rating", ""); got != "4.5" {
		t.Errorf("non-integral number should become a string, got %q", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	bare := `- text: A robot arrives from the future.
  title: Future Visit
  story_index: 1
  issue_info: "1970-01"
- text: A cat is lost at sea.
  title: Lost at Sea
  story_index: 2
  issue_info: null
`
	wrapped := "stories:\n" + indent(bare)
	for name, content := range map[string]string{"bare.yaml": bare, "wrapped.yml": wrapped} {
		t.Run(name, func(t *testing.T) {
			docs, err := Load(context.Background(), writeFile(t, name, content), Options{})
			if err != nil {
				t.Fatal(err)
			}
			assertComic(t, docs)
		})
	}
}

func indent(s string) string {
	out := ""
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out += "  " + s[start:i+1]
			start = i + 1
		}
	}
	return out
}

func TestLoad_Excel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stories.xlsx")
	f := excelize.NewFile()
	rows := [][]any{
		{"title", "text", "story_index", "issue_info"},
		{"Future Visit", "A robot arrives from the future.", 1, "1970-01"},
		{},
		{"Lost at Sea", "A cat is lost at sea.", 2},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	docs, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	assertComic(t, docs)

	if _, err := Load(context.Background(), path, Options{Sheet: "Missing"}); err == nil {
		t.Error("expected error for a missing sheet")
	}
}

func TestLoad_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stories.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
	CREATE TABLE episodes (text TEXT NOT NULL, title TEXT, story_index INTEGER, issue_info TEXT);
	INSERT INTO episodes VALUES ('A robot arrives from the future.', 'Future Visit', 1, '1970-01');
	INSERT INTO episodes VALUES ('A cat is lost at sea.', 'Lost at Sea', 2, NULL);
	`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	docs, err := Load(context.Background(), path, Options{Table: "episodes"})
	if err != nil {
		t.Fatal(err)
	}
	assertComic(t, docs)

	if _, err := Load(context.Background(), path, Options{Table: "episodes; DROP TABLE episodes"}); err == nil {
		t.Error("expected error for an invalid table name")
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Load(ctx, writeFile(t, "stories.csv", "a,b"), Options{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("csv: err = %v", err)
	}
	if _, err := Load(ctx, writeFile(t, "a.jsonl", `{"title":"no text"}`), Options{}); !errors.Is(err, ErrMissingText) {
		t.Errorf("missing text: err = %v", err)
	}
	if _, err := Load(ctx, writeFile(t, "b.jsonl", `{"text":"   "}`), Options{}); !errors.Is(err, ErrMissingText) {
		t.Errorf("blank text: err = %v", err)
	}
	if _, err := Load(ctx, writeFile(t, "c.jsonl", `{"text":"x","tags":["a"]}`), Options{}); err == nil {
		t.Error("expected error for a list field")
	}
	if _, err := Load(ctx, writeFile(t, "d.jsonl", `not json`), Options{}); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(ctx, filepath.Join(t.TempDir(), "missing.jsonl"), Options{}); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestCellValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"12", int64(12)},
		{"0", int64(0)},
		{"007", "007"},
		{"-3", int64(-3)},
		{"1979-04-02", "1979-04-02"},
	}
	for _, tt := range tests {
		if got := cellValue(tt.in); got != tt.want {
			t.Errorf("cellValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
