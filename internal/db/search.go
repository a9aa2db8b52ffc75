package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	Vector    []float32
	// TagFilters are equality conditions on TAG fields, ANDed together
	// ahead of the KNN clause (prefilter-then-search).
	TagFilters   map[string]string
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation, ordered by ascending
// distance.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a KNN search. HasDistance is
// false when the server response omitted the score field.
type SearchEntry struct {
	Key         string
	Distance    float64
	HasDistance bool
	Fields      map[string]string
}
