package embedding

import (
	"path/filepath"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: ids=%d attn=%d types=%d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsTokenID {
		t.Errorf("expected CLS %d, got %d", clsTokenID, ids[0])
	}
	if ids[3] != sepTokenID {
		t.Errorf("expected SEP after two words, got %d", ids[3])
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention mask: %v", attn)
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 4)
	if len(ids) != 4 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d] = %d, want 1 when truncated", i, a)
		}
	}
}

func TestNewHFTokenizer_missingFile(t *testing.T) {
	if _, err := NewHFTokenizer(filepath.Join(t.TempDir(), "tokenizer.json")); err == nil {
		t.Error("expected error for missing tokenizer file")
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
	if HashString("abc") == HashString("abd") {
		t.Error("different words should hash differently")
	}
}
