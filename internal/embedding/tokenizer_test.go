package embedding

import (
	"reflect"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP after two words, got %d", ids[3])
	}
	if attn[0] != 1 || attn[4] != 0 {
		t.Errorf("attention mask = %v", attn)
	}

	upper, _, _ := tok.Tokenize("Hello World", 10)
	if !reflect.DeepEqual(ids, upper) {
		t.Error("tokenization should be case-insensitive")
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"  a  b  c  ", []string{"a", "b", "c"}},
		{"lost at sea, again!", []string{"lost", "at", "sea", "again"}},
		{"猫が海で", []string{"猫", "が", "海", "で"}},
		{"robot ロボ", []string{"robot", "ロ", "ボ"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitWords(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}
