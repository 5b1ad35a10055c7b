package store

import (
	"database/sql"
)

const (
	metaPromptVariant = "prompt_variant"
	metaModel         = "llm_model"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetRunInfo records which grading variant and model the server runs with,
// so exports can say how their scores were produced.
func (s *Store) SetRunInfo(promptVariant, modelID string) error {
	if err := s.SetMetadata(metaPromptVariant, promptVariant); err != nil {
		return err
	}
	return s.SetMetadata(metaModel, modelID)
}

// RunInfo returns the values stored by SetRunInfo.
func (s *Store) RunInfo() (promptVariant, modelID string, err error) {
	if promptVariant, err = s.GetMetadata(metaPromptVariant); err != nil {
		return "", "", err
	}
	modelID, err = s.GetMetadata(metaModel)
	return promptVariant, modelID, err
}
