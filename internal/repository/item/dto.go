package item

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/campusfound/matchd/internal/domain"
)

// Hash field names. The document shape is fixed per collection; anything
// outside these fields is rejected at the transport boundary, not stored.
const (
	fieldUserID       = "user_id"
	fieldCategory     = "category"
	fieldCampus       = "campus"
	fieldDescription  = "generic_description"
	fieldBrand        = "brand"
	fieldModel        = "model"
	fieldColor        = "color"
	fieldEmbedding    = "embedding"
	fieldEmbeddingDim = "embedding_dim"
	fieldEmbeddingAt  = "embedding_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

func fieldsFromItem(it domain.Item) map[string]string {
	fields := map[string]string{
		fieldDescription: it.Attributes.GenericDescription,
		fieldCreatedAt:   it.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:   it.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	setIfPresent := func(field, val string) {
		if val != "" {
			fields[field] = val
		}
	}
	setIfPresent(fieldUserID, it.UserID)
	setIfPresent(fieldCategory, it.Category)
	setIfPresent(fieldCampus, it.Campus)
	setIfPresent(fieldBrand, it.Attributes.Brand)
	setIfPresent(fieldModel, it.Attributes.Model)
	setIfPresent(fieldColor, it.Attributes.Color)

	if len(it.Embedding) > 0 {
		fields[fieldEmbedding] = vectorToBytes(it.Embedding)
		fields[fieldEmbeddingDim] = strconv.Itoa(it.EmbeddingDim)
		fields[fieldEmbeddingAt] = it.EmbeddingAt.UTC().Format(time.RFC3339Nano)
	}

	return fields
}

func itemFromFields(id string, fields map[string]string) domain.Item {
	it := domain.Item{
		ID:       id,
		UserID:   fields[fieldUserID],
		Category: fields[fieldCategory],
		Campus:   fields[fieldCampus],
		Attributes: domain.Attributes{
			GenericDescription: fields[fieldDescription],
			Brand:              fields[fieldBrand],
			Model:              fields[fieldModel],
			Color:              fields[fieldColor],
		},
	}

	if raw, ok := fields[fieldEmbedding]; ok {
		if vec, err := bytesToVector(raw); err == nil {
			it.Embedding = vec
		}
	}
	if dim, err := strconv.Atoi(fields[fieldEmbeddingDim]); err == nil {
		it.EmbeddingDim = dim
	}

	it.EmbeddingAt = parseTime(fields[fieldEmbeddingAt])
	it.CreatedAt = parseTime(fields[fieldCreatedAt])
	it.UpdatedAt = parseTime(fields[fieldUpdatedAt])

	return it
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(data string) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, strconv.ErrSyntax
	}
	b := []byte(data)
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
