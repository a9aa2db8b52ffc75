package db

// IndexFieldType enumerates the supported FT field types.
type IndexFieldType string

const (
	IndexFieldTag    IndexFieldType = "TAG"
	IndexFieldVector IndexFieldType = "VECTOR"
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	// Vector field attributes (HNSW, FLOAT32, COSINE).
	VectorDim         int
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition describes an FT index over HASH keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}
