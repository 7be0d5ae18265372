package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"devsolver/config"
	"devsolver/internal/adapter/store"
)

const keyConfigHash = "config_hash"

// CurrentSchemaVersion is the highest migration shipped with this build.
const CurrentSchemaVersion = 1

func (s *Store) configHash() (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, keyConfigHash).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// CheckMigration compares the stored config hash with cfg. Schema upgrades
// are applied on open, so only a newer schema or a config change is
// reported.
func (s *Store) CheckMigration(cfg *config.Config) (*store.MigrationResult, error) {
	version, err := s.schemaVersion()
	if err != nil {
		return nil, err
	}
	hash, err := s.configHash()
	if err != nil {
		return nil, fmt.Errorf("failed to read config hash: %w", err)
	}

	result := &store.MigrationResult{
		OldVersion: version,
		NewVersion: CurrentSchemaVersion,
	}
	switch {
	case version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", version, CurrentSchemaVersion)
	case hash == "":
		result.NeedsMigration = true
		result.Reason = "recording configuration hash"
	case hash != store.ComputeConfigHash(cfg):
		result.NeedsRebuild = true
		result.Reason = "chunking or embedding configuration changed"
	}
	return result, nil
}

// Migrate records the config hash of cfg.
func (s *Store) Migrate(cfg *config.Config) error {
	_, err := s.db.Exec(`
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, keyConfigHash, store.ComputeConfigHash(cfg))
	return err
}

// Clear removes every technology, keeping schema and config information.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM documents`)
	return err
}
