package redis

import (
	"strings"
	"testing"

	"github.com/campusfound/matchd/internal/db"
)

func TestBuildKNNQuery(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		k       int
		want    string
	}{
		{
			name: "no filters",
			k:    10,
			want: "*=>[KNN 10 @embedding $BLOB]",
		},
		{
			name:    "single tag",
			filters: map[string]string{"category": "electronics"},
			k:       3,
			want:    "(@category:{electronics})=>[KNN 3 @embedding $BLOB]",
		},
		{
			name:    "two tags sorted",
			filters: map[string]string{"campus": "arlington", "category": "bags"},
			k:       5,
			want:    "(@campus:{arlington} @category:{bags})=>[KNN 5 @embedding $BLOB]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildKNNQuery(tt.filters, tt.k)
			if got != tt.want {
				t.Errorf("buildKNNQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeTag(t *testing.T) {
	got := escapeTag("water-bottles & flasks")
	want := `water\-bottles\ \&\ flasks`
	if got != want {
		t.Errorf("escapeTag() = %q, want %q", got, want)
	}
}

func TestBuildCreateArgs(t *testing.T) {
	def := &db.IndexDefinition{
		Name:     "lfm:found:idx",
		Prefixes: []string{"lfm:found:"},
		Fields: []db.IndexField{
			{Name: "category", Type: db.IndexFieldTag},
			{Name: "campus", Type: db.IndexFieldTag},
			{Name: "embedding", Type: db.IndexFieldVector, VectorDim: 768, VectorM: 32, VectorEFConstruct: 400},
		},
	}

	args, err := buildCreateArgs(def)
	if err != nil {
		t.Fatalf("buildCreateArgs: %v", err)
	}

	got := strings.Join(args, " ")
	want := "lfm:found:idx ON HASH PREFIX 1 lfm:found: SCHEMA " +
		"category TAG campus TAG " +
		"embedding VECTOR HNSW 10 TYPE FLOAT32 DIM 768 DISTANCE_METRIC COSINE M 32 EF_CONSTRUCTION 400"
	if got != want {
		t.Errorf("buildCreateArgs:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestBuildCreateArgs_Invalid(t *testing.T) {
	if _, err := buildCreateArgs(&db.IndexDefinition{}); err == nil {
		t.Error("expected error for empty definition")
	}

	noDim := &db.IndexDefinition{
		Name:   "idx",
		Fields: []db.IndexField{{Name: "embedding", Type: db.IndexFieldVector}},
	}
	if _, err := buildCreateArgs(noDim); err == nil {
		t.Error("expected error for vector field without DIM")
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 0, 1e-6}

	decoded, err := BytesToVector(VectorToBytes(vec))
	if err != nil {
		t.Fatalf("BytesToVector: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("element %d: got %g, want %g", i, decoded[i], vec[i])
		}
	}

	if _, err := BytesToVector("abc"); err == nil {
		t.Error("expected error for non-multiple-of-4 data")
	}
}
