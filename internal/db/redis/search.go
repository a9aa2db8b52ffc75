package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/campusfound/matchd/internal/db"
)

// distanceField is where RediSearch reports the KNN score for the
// @embedding vector field (default __<field>_score naming).
const distanceField = "__embedding_score"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// Results are ordered by ascending cosine distance.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := buildKNNQuery(q.TagFilters, q.K)

	returnFields := append([]string{distanceField}, q.ReturnFields...)

	args := []string{q.IndexName, queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args,
		"SORTBY", distanceField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", VectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		if isRedisErr(err, "unknown command") {
			return nil, db.ErrSearchUnsupported
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// buildKNNQuery composes the filter prefix and KNN clause.
// Tag filters are ANDed ahead of the KNN part so the candidate space is
// narrowed before the similarity search, not after.
func buildKNNQuery(tagFilters map[string]string, k int) string {
	knnPart := fmt.Sprintf("[KNN %d @embedding $BLOB]", k)

	if len(tagFilters) == 0 {
		return "*=>" + knnPart
	}

	// Deterministic clause order for testability and log stability.
	fields := make([]string, 0, len(tagFilters))
	for f := range tagFilters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, fmt.Sprintf("@%s:{%s}", f, escapeTag(tagFilters[f])))
	}

	return fmt.Sprintf("(%s)=>%s", strings.Join(clauses, " "), knnPart)
}

// escapeTag escapes RediSearch TAG syntax characters in a filter value.
func escapeTag(v string) string {
	var sb strings.Builder
	for _, r := range v {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';',
			'!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+',
			'=', '~', '|', ' ', '/', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// parseKNNResult converts the RESP2 reply into db.SearchResult.
// Reply shape: [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fieldsArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fieldsArr),
		}

		if scoreStr, ok := entry.Fields[distanceField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Distance = d
				entry.HasDistance = true
			}
			delete(entry.Fields, distanceField)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

// parseFieldPairs converts [k1, v1, k2, v2, ...] into a map.
func parseFieldPairs(arr []rueidis.RedisMessage) map[string]string {
	fields := make(map[string]string, len(arr)/2)
	for i := 0; i+1 < len(arr); i += 2 {
		k, err := arr[i].ToString()
		if err != nil {
			continue
		}
		v, err := arr[i+1].ToString()
		if err != nil {
			continue
		}
		fields[k] = v
	}
	return fields
}

// VectorToBytes encodes a float32 vector as the little-endian binary blob
// RediSearch expects for VECTOR fields and KNN params.
func VectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// BytesToVector decodes a binary blob back into a float32 vector.
func BytesToVector(data string) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	b := []byte(data)
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
