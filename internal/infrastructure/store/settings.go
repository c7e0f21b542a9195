package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Settings reads runtime configuration from the system_settings table.
// Values are stored as JSON wrapped in {"v": ...}; a missing key or a
// malformed value falls back to the caller's default and is never fatal.
type Settings struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewSettings(repo *Repository, logger *logrus.Logger) *Settings {
	return &Settings{pool: repo.pool, logger: logger}
}

func (s *Settings) GetString(ctx context.Context, key, fallback string) string {
	var value string
	if err := s.get(ctx, key, &value); err != nil {
		return fallback
	}
	return value
}

func (s *Settings) GetInt(ctx context.Context, key string, fallback int) int {
	var value int
	if err := s.get(ctx, key, &value); err != nil {
		return fallback
	}
	return value
}

func (s *Settings) get(ctx context.Context, key string, out any) error {
	const query = `SELECT value FROM system_settings WHERE key=$1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&raw); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.WithError(err).WithField("key", key).Warn("settings read failed")
		}
		return err
	}

	var wrapper struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("settings value malformed")
		return err
	}
	if err := json.Unmarshal(wrapper.V, out); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("settings value type mismatch")
		return err
	}
	return nil
}

func (s *Settings) Put(ctx context.Context, key string, value any) error {
	wrapped, err := json.Marshal(map[string]any{"v": value})
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query, key, wrapped, time.Now().UTC())
	return err
}
