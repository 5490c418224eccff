// Package vector provides the append-only slot index used by the answer cache.
//
// Each slot owns both a normalized embedding and the question text that
// produced it, so the two can never drift out of sync. Slots are assigned
// 0,1,2,... in insertion order and are never reused or renumbered, which lets
// a slot double as a stable key for the question it holds.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Match is a single search hit: the slot, the question stored at that slot,
// and the inner-product similarity to the query (cosine for normalized inputs).
type Match struct {
	Slot     int
	Question string
	Score    float64
}

// SlotIndex is an in-memory brute-force inner product index over question
// embeddings. Entries are append-only; there is no remove or reorder path.
type SlotIndex struct {
	dimensions int
	questions  []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewSlotIndex creates an empty slot index with the given dimension.
func NewSlotIndex(dimensions int) (*SlotIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &SlotIndex{
		dimensions: dimensions,
		questions:  make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Append stores a question and its normalized embedding, returning the newly
// assigned slot number.
func (s *SlotIndex) Append(ctx context.Context, question string, vec []float32) (int, error) {
	if len(vec) != s.dimensions {
		return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), s.dimensions)
	}
	v := make([]float32, s.dimensions)
	copy(v, vec)
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := len(s.questions)
	s.questions = append(s.questions, question)
	s.vectors = append(s.vectors, v)
	return slot, nil
}

// Search returns up to k matches ranked by descending inner product. Exact
// score ties rank the lower (older) slot first. An empty index returns no
// matches and no error.
func (s *SlotIndex) Search(ctx context.Context, query []float32, k int) ([]*Match, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.questions) == 0 {
		return nil, nil
	}
	matches := make([]*Match, len(s.questions))
	for i, vec := range s.vectors {
		var dot float64
		for j := 0; j < s.dimensions; j++ {
			dot += float64(query[j] * vec[j])
		}
		matches[i] = &Match{Slot: i, Question: s.questions[i], Score: dot}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Question returns the question stored at slot, or false if the slot does not exist.
func (s *SlotIndex) Question(slot int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slot < 0 || slot >= len(s.questions) {
		return "", false
	}
	return s.questions[slot], true
}

// Size returns the number of slots in the index.
func (s *SlotIndex) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions)
}

// Dimensions returns the embedding dimension the index was created with.
func (s *SlotIndex) Dimensions() int {
	return s.dimensions
}

// Save persists the full index to path, creating parent directories if
// needed. Format: dimension (4), n (4), then per slot: question length (4),
// question bytes, vector (dimension*4 bytes), all little-endian. The snapshot
// is rewritten whole on every save; Load of a Save produces identical search
// rankings.
func (s *SlotIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(s.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.questions))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, q := range s.questions {
		qBytes := []byte(q)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(qBytes))); err != nil {
			return fmt.Errorf("write question len: %w", err)
		}
		if _, err := f.Write(qBytes); err != nil {
			return fmt.Errorf("write question: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(s.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file is not an error; the index is simply
// left empty (first run).
func (s *SlotIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != s.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, s.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	questions := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, s.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var qLen uint32
		if err := binary.Read(f, binary.LittleEndian, &qLen); err != nil {
			return fmt.Errorf("read question len: %w", err)
		}
		qBytes := make([]byte, qLen)
		if _, err := io.ReadFull(f, qBytes); err != nil {
			return fmt.Errorf("read question: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		questions = append(questions, string(qBytes))
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = questions
	s.vectors = vectors
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
