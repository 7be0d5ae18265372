// Package store persists documentation corpora in a bbolt database.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.etcd.io/bbolt"

	"devsolver/internal/domain"
)

// ErrNotFound is returned when a technology or document does not exist.
var ErrNotFound = errors.New("not found")

var (
	bucketMeta       = []byte("meta")
	bucketTech       = []byte("technologies")
	bucketDocs       = []byte("docs")
	bucketChunks     = []byte("chunks")
	bucketEmbeddings = []byte("embeddings")
)

// keySep separates a document id from the rest of a composite key.
const keySep = 0x00

// BoltStore is a DocumentStore backed by bbolt. Each technology gets its own
// nested bucket holding docs, chunks and embeddings.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Option configures a BoltStore.
type Option func(*BoltStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *BoltStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketTech} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func docPrefix(documentID string) []byte {
	return append([]byte(documentID), keySep)
}

func chunkKey(chunk domain.Chunk) []byte {
	return append(docPrefix(chunk.DocumentID), fmt.Sprintf("%08d", chunk.Ordinal)...)
}

func embeddingKey(documentID, chunkID string) []byte {
	return append(docPrefix(documentID), chunkID...)
}

// techBucket returns the technology bucket, or nil if it does not exist.
func techBucket(tx *bbolt.Tx, technology string) *bbolt.Bucket {
	return tx.Bucket(bucketTech).Bucket([]byte(technology))
}

func createTechBucket(tx *bbolt.Tx, technology string) (*bbolt.Bucket, error) {
	if technology == "" {
		return nil, fmt.Errorf("technology is required")
	}
	tb, err := tx.Bucket(bucketTech).CreateBucketIfNotExists([]byte(technology))
	if err != nil {
		return nil, err
	}
	for _, name := range [][]byte{bucketDocs, bucketChunks, bucketEmbeddings} {
		if _, err := tb.CreateBucketIfNotExists(name); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

// forEachPrefix visits keys starting with prefix, or every key if prefix is
// empty.
func forEachPrefix(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte)) {
	c := b.Cursor()
	var k, v []byte
	if len(prefix) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		fn(k, v)
	}
}

func deletePrefix(b *bbolt.Bucket, prefix []byte) error {
	var keys [][]byte
	forEachPrefix(b, prefix, func(k, _ []byte) {
		keys = append(keys, append([]byte(nil), k...))
	})
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) LoadChunks(ctx context.Context, technology, documentID string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil {
			return nil
		}
		var prefix []byte
		if documentID != "" {
			prefix = docPrefix(documentID)
		}
		forEachPrefix(tb.Bucket(bucketChunks), prefix, func(k, v []byte) {
			var chunk domain.Chunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				s.logger.Warn("skipping corrupt chunk record",
					"technology", technology, "key", string(bytes.ReplaceAll(k, []byte{keySep}, []byte("/"))), "error", err)
				return
			}
			chunks = append(chunks, chunk)
		})
		return nil
	})
	return chunks, err
}

func (s *BoltStore) LoadSourceMeta(ctx context.Context, technology string) (map[string]domain.SourceMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metas := make(map[string]domain.SourceMeta)
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil {
			return nil
		}
		return tb.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta domain.SourceMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				s.logger.Warn("skipping corrupt source record",
					"technology", technology, "document", string(k), "error", err)
				return nil
			}
			metas[string(k)] = meta
			return nil
		})
	})
	return metas, err
}

// SaveDocument replaces a document's metadata, chunks and embeddings.
func (s *BoltStore) SaveDocument(ctx context.Context, technology string, meta domain.SourceMeta, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if meta.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}
	meta.ChunkCount = len(chunks)

	return s.db.Update(func(tx *bbolt.Tx) error {
		tb, err := createTechBucket(tx, technology)
		if err != nil {
			return err
		}

		prefix := docPrefix(meta.DocumentID)
		chunkBucket := tb.Bucket(bucketChunks)
		if err := deletePrefix(chunkBucket, prefix); err != nil {
			return err
		}
		if err := deletePrefix(tb.Bucket(bucketEmbeddings), prefix); err != nil {
			return err
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tb.Bucket(bucketDocs).Put([]byte(meta.DocumentID), data); err != nil {
			return err
		}

		for _, chunk := range chunks {
			chunk.DocumentID = meta.DocumentID
			data, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put(chunkKey(chunk), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) DeleteDocument(ctx context.Context, technology, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil || tb.Bucket(bucketDocs).Get([]byte(documentID)) == nil {
			return fmt.Errorf("document %s/%s: %w", technology, documentID, ErrNotFound)
		}

		prefix := docPrefix(documentID)
		if err := deletePrefix(tb.Bucket(bucketChunks), prefix); err != nil {
			return err
		}
		if err := deletePrefix(tb.Bucket(bucketEmbeddings), prefix); err != nil {
			return err
		}
		return tb.Bucket(bucketDocs).Delete([]byte(documentID))
	})
}

func (s *BoltStore) ListTechnologies(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var techs []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTech).ForEach(func(k, v []byte) error {
			if v == nil {
				techs = append(techs, string(k))
			}
			return nil
		})
	})
	sort.Strings(techs)
	return techs, err
}

func (s *BoltStore) Stats(ctx context.Context, technology string) (domain.StoreStats, error) {
	stats := domain.StoreStats{Technology: technology}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := techBucket(tx, technology)
		if tb == nil {
			return fmt.Errorf("technology %s: %w", technology, ErrNotFound)
		}
		stats.Documents = tb.Bucket(bucketDocs).Stats().KeyN
		stats.Chunks = tb.Bucket(bucketChunks).Stats().KeyN
		stats.Embeddings = tb.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return stats, err
}

// DropTechnology removes a technology and everything stored under it.
func (s *BoltStore) DropTechnology(ctx context.Context, technology string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketTech).DeleteBucket([]byte(technology))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("technology %s: %w", technology, ErrNotFound)
		}
		return err
	})
}
