package domain

import "testing"

func TestItem_Description(t *testing.T) {
	it := Item{Attributes: Attributes{GenericDescription: "  black Hydro Flask 32oz \n"}}
	if got := it.Description(); got != "black Hydro Flask 32oz" {
		t.Errorf("Description() = %q", got)
	}

	empty := Item{Attributes: Attributes{GenericDescription: "   "}}
	if got := empty.Description(); got != "" {
		t.Errorf("Description() of whitespace = %q, want empty", got)
	}
}

func TestItem_HasValidEmbedding(t *testing.T) {
	vec := make([]float32, 768)

	tests := []struct {
		name string
		item Item
		dim  int
		want bool
	}{
		{"valid", Item{Embedding: vec, EmbeddingDim: 768}, 768, true},
		{"absent", Item{}, 768, false},
		{"stale dim", Item{Embedding: vec, EmbeddingDim: 512}, 768, false},
		{"dim field lies about length", Item{Embedding: make([]float32, 512), EmbeddingDim: 768}, 768, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.HasValidEmbedding(tt.dim); got != tt.want {
				t.Errorf("HasValidEmbedding(%d) = %v, want %v", tt.dim, got, tt.want)
			}
		})
	}
}

func TestParseMatchStatus(t *testing.T) {
	for _, s := range []string{"pending", "accepted", "rejected"} {
		if _, err := ParseMatchStatus(s); err != nil {
			t.Errorf("ParseMatchStatus(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseMatchStatus("maybe"); err == nil {
		t.Error("ParseMatchStatus(\"maybe\") expected error")
	}
}
