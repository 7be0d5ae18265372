// Package memstore is an in-memory DocumentStore used by tests and the
// --memory mode of the CLI.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"devsolver/internal/adapter/store"
	"devsolver/internal/domain"
)

type technology struct {
	docs       map[string]domain.SourceMeta
	docChunks  map[string][]domain.Chunk
	embeddings map[string]map[string]domain.EmbeddingVector // document -> chunk -> vector
}

func newTechnology() *technology {
	return &technology{
		docs:       make(map[string]domain.SourceMeta),
		docChunks:  make(map[string][]domain.Chunk),
		embeddings: make(map[string]map[string]domain.EmbeddingVector),
	}
}

type MemoryStore struct {
	mu    sync.RWMutex
	techs map[string]*technology
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{techs: make(map[string]*technology)}
}

func (s *MemoryStore) LoadChunks(ctx context.Context, tech, documentID string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.techs[tech]
	if !ok {
		return nil, nil
	}
	if documentID != "" {
		return append([]domain.Chunk(nil), t.docChunks[documentID]...), nil
	}

	docIDs := make([]string, 0, len(t.docChunks))
	for id := range t.docChunks {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	var chunks []domain.Chunk
	for _, id := range docIDs {
		chunks = append(chunks, t.docChunks[id]...)
	}
	return chunks, nil
}

func (s *MemoryStore) LoadEmbeddings(ctx context.Context, tech, documentID string) (map[string]domain.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.EmbeddingVector)
	t, ok := s.techs[tech]
	if !ok {
		return out, nil
	}
	for docID, vecs := range t.embeddings {
		if documentID != "" && docID != documentID {
			continue
		}
		for chunkID, v := range vecs {
			out[chunkID] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadSourceMeta(ctx context.Context, tech string) (map[string]domain.SourceMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.SourceMeta)
	if t, ok := s.techs[tech]; ok {
		for id, meta := range t.docs {
			out[id] = meta
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveDocument(ctx context.Context, tech string, meta domain.SourceMeta, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tech == "" || meta.DocumentID == "" {
		return fmt.Errorf("technology and document id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.techs[tech]
	if !ok {
		t = newTechnology()
		s.techs[tech] = t
	}

	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)
	for i := range stored {
		stored[i].DocumentID = meta.DocumentID
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Ordinal < stored[j].Ordinal })

	meta.ChunkCount = len(stored)
	t.docs[meta.DocumentID] = meta
	t.docChunks[meta.DocumentID] = stored
	delete(t.embeddings, meta.DocumentID)
	return nil
}

func (s *MemoryStore) SaveEmbeddings(ctx context.Context, tech, documentID string, embeddings map[string]domain.EmbeddingVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.techs[tech]
	if !ok {
		return fmt.Errorf("document %s/%s: %w", tech, documentID, store.ErrNotFound)
	}
	if _, ok := t.docs[documentID]; !ok {
		return fmt.Errorf("document %s/%s: %w", tech, documentID, store.ErrNotFound)
	}

	vecs, ok := t.embeddings[documentID]
	if !ok {
		vecs = make(map[string]domain.EmbeddingVector, len(embeddings))
		t.embeddings[documentID] = vecs
	}
	for id, v := range embeddings {
		vecs[id] = v
	}
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, tech, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.techs[tech]
	if !ok {
		return fmt.Errorf("document %s/%s: %w", tech, documentID, store.ErrNotFound)
	}
	if _, ok := t.docs[documentID]; !ok {
		return fmt.Errorf("document %s/%s: %w", tech, documentID, store.ErrNotFound)
	}
	delete(t.docs, documentID)
	delete(t.docChunks, documentID)
	delete(t.embeddings, documentID)
	return nil
}

func (s *MemoryStore) ListTechnologies(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	techs := make([]string, 0, len(s.techs))
	for name := range s.techs {
		techs = append(techs, name)
	}
	sort.Strings(techs)
	return techs, nil
}

func (s *MemoryStore) Stats(ctx context.Context, tech string) (domain.StoreStats, error) {
	stats := domain.StoreStats{Technology: tech}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.techs[tech]
	if !ok {
		return stats, fmt.Errorf("technology %s: %w", tech, store.ErrNotFound)
	}
	stats.Documents = len(t.docs)
	for _, chunks := range t.docChunks {
		stats.Chunks += len(chunks)
	}
	for _, vecs := range t.embeddings {
		stats.Embeddings += len(vecs)
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
