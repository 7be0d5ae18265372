package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"devsolver/internal/domain"
)

type storedVector struct {
	ChunkID string    `json:"c"`
	Vector  []float32 `json:"v"`
}

// SaveEmbeddings stores embeddings for chunks of an existing document.
// Existing vectors for the same chunks are replaced.
func (s *BoltStore) SaveEmbeddings(ctx context.Context, technology, documentID string, embeddings map[string]domain.EmbeddingVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil || tb.Bucket(bucketDocs).Get([]byte(documentID)) == nil {
			return fmt.Errorf("document %s/%s: %w", technology, documentID, ErrNotFound)
		}

		b := tb.Bucket(bucketEmbeddings)
		for chunkID, vec := range embeddings {
			data, err := json.Marshal(storedVector{ChunkID: chunkID, Vector: vec})
			if err != nil {
				return err
			}
			if err := b.Put(embeddingKey(documentID, chunkID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEmbeddings returns embeddings keyed by chunk id. An empty documentID
// loads the whole technology. Corrupt entries are skipped.
func (s *BoltStore) LoadEmbeddings(ctx context.Context, technology, documentID string) (map[string]domain.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]domain.EmbeddingVector)
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil {
			return nil
		}
		var prefix []byte
		if documentID != "" {
			prefix = docPrefix(documentID)
		}
		forEachPrefix(tb.Bucket(bucketEmbeddings), prefix, func(k, v []byte) {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil || stored.ChunkID == "" {
				s.logger.Warn("skipping corrupt embedding record", "technology", technology, "error", err)
				return
			}
			out[stored.ChunkID] = domain.EmbeddingVector(stored.Vector)
		})
		return nil
	})
	return out, err
}
