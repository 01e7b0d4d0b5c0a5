package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AddKnowledge stores a learned item. vector may be nil when no embedding is
// available; vectors are normalized before storage so search can use a plain
// dot product. Importance is clamped into 1..10.
func (s *Store) AddKnowledge(content, summary, source string, importance int, vector []float32) (*Knowledge, error) {
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}
	k := &Knowledge{
		ID:         uuid.NewString(),
		Content:    content,
		Summary:    summary,
		Source:     source,
		Importance: importance,
		CreatedAt:  time.Now(),
	}

	err := s.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO knowledge (id, content, summary, source, importance, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			k.ID, k.Content, k.Summary, k.Source, k.Importance, k.CreatedAt); err != nil {
			return err
		}
		if len(vector) > 0 {
			blob, err := encodeVector(normalizeVector(vector))
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT INTO knowledge_vectors (knowledge_id, vector) VALUES (?, ?)`, k.ID, blob); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add knowledge: %w", err)
	}

	s.publish(StreamThoughts, k)
	return k, nil
}

// SearchKnowledge returns the k nearest items by cosine distance against the
// query vector. Vectors are stored normalized, so distance = 1 - dot.
// Equal distances break ties by id. An empty index yields an empty result.
func (s *Store) SearchKnowledge(queryVector []float32, k int) ([]Knowledge, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	query := normalizeVector(queryVector)

	s.mu.Lock()
	rows, err := s.db.Query(`SELECT kn.id, kn.content, kn.summary, kn.source, kn.importance, kn.created_at, kv.vector
		FROM knowledge kn JOIN knowledge_vectors kv ON kv.knowledge_id = kn.id`)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var scored []Knowledge
	for rows.Next() {
		var item Knowledge
		var blob []byte
		if err := rows.Scan(&item.ID, &item.Content, &item.Summary, &item.Source, &item.Importance, &item.CreatedAt, &blob); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != len(query) {
			continue
		}
		var dot float32
		for i := range query {
			dot += query[i] * vec[i]
		}
		item.Distance = 1 - float64(dot)
		scored = append(scored, item)
	}
	rows.Close()
	s.mu.Unlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// DeleteKnowledge removes an item and, via cascade, its vector.
func (s *Store) DeleteKnowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM knowledge WHERE id = ?`, id)
	return err
}

// PruneKnowledge deletes the least valuable items beyond max, ascending by
// (importance, created_at). Vectors are deleted with their parents.
func (s *Store) PruneKnowledge(max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge`).Scan(&count); err != nil {
		return 0, err
	}
	if count <= max {
		return 0, nil
	}

	res, err := s.db.Exec(`DELETE FROM knowledge WHERE id IN (
		SELECT id FROM knowledge ORDER BY importance ASC, created_at ASC LIMIT ?)`, count-max)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountKnowledge returns the number of stored knowledge items.
func (s *Store) CountKnowledge() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge`).Scan(&count)
	return count, err
}

// HasVector reports whether a vector row exists for the given knowledge id.
func (s *Store) HasVector(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM knowledge_vectors WHERE knowledge_id = ?`, id).Scan(&n)
	return n > 0, err
}

func encodeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}

func normalizeVector(v []float32) []float32 {
	var mag float64
	for _, x := range v {
		mag += float64(x) * float64(x)
	}
	mag = math.Sqrt(mag)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
