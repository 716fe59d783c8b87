// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localstore persists per-device chat state: the anonymous user
// identity, feedback verdicts, message-id caches, deletion tombstones,
// and the one-shot feedback prompt flags.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// STORE
// =============================================================================

// Store is the on-device SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the local database. An empty path
// defaults to ~/.sbrchat/local.db.
func Open(path string) (*Store, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(homeDir, ".sbrchat", "local.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			session_id TEXT NOT NULL,
			position   INTEGER NOT NULL,
			verdict    TEXT NOT NULL,
			text       TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS message_ids (
			session_id TEXT NOT NULL,
			ordinal    INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			PRIMARY KEY (session_id, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			session_id TEXT PRIMARY KEY,
			deleted_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			session_id TEXT PRIMARY KEY,
			shown_at   INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// IDENTITY
// =============================================================================

// UserID returns the anonymous device identity, generating and persisting
// a fresh UUID on first call.
func (s *Store) UserID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = 'user_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to load user id: %w", err)
	}

	id = uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES ('user_id', ?)`, id); err != nil {
		return "", fmt.Errorf("failed to store user id: %w", err)
	}
	return id, nil
}

// Locale returns the stored interface locale, or empty if never set.
func (s *Store) Locale(ctx context.Context) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = 'locale'`).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load locale: %w", err)
	}
	return code, nil
}

// SetLocale persists the interface locale.
func (s *Store) SetLocale(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES ('locale', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, code)
	if err != nil {
		return fmt.Errorf("failed to store locale: %w", err)
	}
	return nil
}

// =============================================================================
// FEEDBACK VERDICTS
// =============================================================================

// SaveVerdict records a feedback verdict for the assistant message at the
// given list position, overwriting any previous verdict.
func (s *Store) SaveVerdict(ctx context.Context, sessionID string, position int, verdict, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, position, verdict, text, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, position) DO UPDATE
		 SET verdict = excluded.verdict, text = excluded.text, created_at = excluded.created_at`,
		sessionID, position, verdict, text, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}
	return nil
}

// Verdict returns the stored verdict for a message position, or empty if
// none was recorded.
func (s *Store) Verdict(ctx context.Context, sessionID string, position int) (string, error) {
	var verdict string
	err := s.db.QueryRowContext(ctx,
		`SELECT verdict FROM feedback WHERE session_id = ? AND position = ?`,
		sessionID, position).Scan(&verdict)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load verdict: %w", err)
	}
	return verdict, nil
}

// Verdicts returns all recorded verdicts of a session keyed by position.
func (s *Store) Verdicts(ctx context.Context, sessionID string) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, verdict FROM feedback WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := make(map[int]string)
	for rows.Next() {
		var position int
		var verdict string
		if err := rows.Scan(&position, &verdict); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		verdicts[position] = verdict
	}
	return verdicts, rows.Err()
}

// DeleteVerdict removes a recorded verdict. Used to roll back an
// optimistic save after a failed submission.
func (s *Store) DeleteVerdict(ctx context.Context, sessionID string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback WHERE session_id = ? AND position = ?`,
		sessionID, position)
	if err != nil {
		return fmt.Errorf("failed to delete verdict: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGE ID CACHE
// =============================================================================

// CacheMessageID stores the server-side message id for the assistant
// message at the given ordinal within a session.
func (s *Store) CacheMessageID(ctx context.Context, sessionID string, ordinal int, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_ids (session_id, ordinal, message_id)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_id, ordinal) DO UPDATE SET message_id = excluded.message_id`,
		sessionID, ordinal, messageID)
	if err != nil {
		return fmt.Errorf("failed to cache message id: %w", err)
	}
	return nil
}

// MessageID returns the cached server-side message id for an ordinal, or
// empty if unknown.
func (s *Store) MessageID(ctx context.Context, sessionID string, ordinal int) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id FROM message_ids WHERE session_id = ? AND ordinal = ?`,
		sessionID, ordinal).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load message id: %w", err)
	}
	return id, nil
}

// CacheMessageIDs stores a batch of ordinal-to-id mappings in one
// transaction. Used after a history refetch resolves missing ids.
func (s *Store) CacheMessageIDs(ctx context.Context, sessionID string, ids map[int]string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO message_ids (session_id, ordinal, message_id)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_id, ordinal) DO UPDATE SET message_id = excluded.message_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for ordinal, id := range ids {
		if _, err := stmt.ExecContext(ctx, sessionID, ordinal, id); err != nil {
			return fmt.Errorf("failed to cache message id: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// TOMBSTONES
// =============================================================================

// AddTombstone marks a session as deleted so a stale server listing
// cannot resurrect it.
func (s *Store) AddTombstone(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tombstones (session_id, deleted_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to add tombstone: %w", err)
	}
	return nil
}

// RemoveTombstone clears a deletion marker.
func (s *Store) RemoveTombstone(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tombstones WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to remove tombstone: %w", err)
	}
	return nil
}

// Tombstones returns all sessions marked as deleted.
func (s *Store) Tombstones(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM tombstones`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tombstones: %w", err)
	}
	defer rows.Close()

	dead := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		dead[id] = true
	}
	return dead, rows.Err()
}

// PruneTombstones drops markers at or older than the given age. Once the
// server has long forgotten a session the marker serves no purpose.
// Timestamps are stored at nanosecond precision so the cutoff comparison
// never rounds a fresh marker into the stale range or vice versa.
func (s *Store) PruneTombstones(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tombstones WHERE deleted_at <= ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune tombstones: %w", err)
	}
	return nil
}

// =============================================================================
// FEEDBACK PROMPT FLAGS
// =============================================================================

// PromptShown reports whether the improvement prompt was already shown
// for a session.
func (s *Store) PromptShown(ctx context.Context, sessionID string) (bool, error) {
	var shownAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT shown_at FROM prompts WHERE session_id = ?`, sessionID).Scan(&shownAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load prompt flag: %w", err)
	}
	return true, nil
}

// MarkPromptShown records that the improvement prompt was shown for a
// session.
func (s *Store) MarkPromptShown(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (session_id, shown_at) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark prompt: %w", err)
	}
	return nil
}
