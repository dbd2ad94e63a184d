// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package sqlite provides a SQLite-backed CredentialRepository using the
// pure-Go modernc.org/sqlite driver. Timestamps are stored as UTC unix
// milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

//go:embed schema.sql
var schema string

// Store is a SQLite-backed passkey.CredentialRepository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if necessary) the database at path and applies the
// schema. WAL mode keeps concurrent readers from blocking the single writer.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", passkey.ErrInvalidConfiguration)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}

	// SQLite allows a single writer; bounding the pool avoids lock
	// contention errors under concurrent ceremonies.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", passkey.ErrStorageUnavailable, err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUserWithCredential(ctx context.Context, user *passkey.User, credential *passkey.Credential) error {
	if user == nil || credential == nil {
		return fmt.Errorf("%w: nil user or credential", passkey.ErrInvalidConfiguration)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (handle, username, normalized_username, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Handle, user.Username, user.NormalizedUsername, user.DisplayName,
		user.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: insert user: %v", passkey.ErrStorageUnavailable, err)
	}

	transports, err := json.Marshal(credential.Transports)
	if err != nil {
		return fmt.Errorf("%w: encode transports: %v", passkey.ErrStorageUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credentials (
		     id, user_handle, public_key, attestation_type, transports,
		     user_present, user_verified, backup_eligible, backup_state,
		     signature_counter, attestation_format, attestation_object,
		     client_data_hash, aaguid, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credential.ID, user.Handle, credential.PublicKey, credential.AttestationType,
		string(transports), credential.Flags.UserPresent, credential.Flags.UserVerified,
		credential.Flags.BackupEligible, credential.Flags.BackupState,
		credential.SignatureCounter, credential.Attestation.Format,
		credential.Attestation.Object, credential.Attestation.ClientDataHash,
		credential.Attestation.AAGUID,
		credential.CreatedAt.UTC().UnixMilli(), credential.LastUsedAt.UTC().UnixMilli())
	if err != nil {
		// A credential ID collision rolls back the user insert as well.
		if isUniqueViolation(err) {
			return passkey.ErrDuplicateCredential
		}
		return fmt.Errorf("%w: insert credential: %v", passkey.ErrStorageUnavailable, err)
	}

	for _, key := range credential.DevicePublicKeys {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO device_public_keys (credential_id, public_key, created_at)
			 VALUES (?, ?, ?)`,
			credential.ID, key, s.now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("%w: insert device key: %v", passkey.ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) FindCredentialsForUsername(ctx context.Context, normalizedUsername string) ([]*passkey.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCredential+`
		 WHERE c.user_handle IN (
		     SELECT handle FROM users WHERE normalized_username = ?)`,
		normalizedUsername)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var credentials []*passkey.Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}

	for _, credential := range credentials {
		if err := s.loadDeviceKeys(ctx, credential); err != nil {
			return nil, err
		}
	}
	return credentials, nil
}

func (s *Store) FindByCredentialID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	row := s.db.QueryRowContext(ctx, selectCredential+` WHERE c.id = ?`, credentialID)

	credential, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, passkey.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDeviceKeys(ctx, credential); err != nil {
		return nil, err
	}
	return credential, nil
}

func (s *Store) FindUserByHandle(ctx context.Context, handle []byte) (*passkey.User, error) {
	var user passkey.User
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT handle, username, normalized_username, display_name, created_at
		 FROM users WHERE handle = ?`, handle).
		Scan(&user.Handle, &user.Username, &user.NormalizedUsername,
			&user.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, passkey.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func (s *Store) UpdateAfterAssertion(ctx context.Context, credentialID []byte, prevCounter, newCounter uint32, devicePublicKey []byte, backupState bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	// Compare-and-swap on the counter: the write lands only if nothing has
	// advanced it since this assertion read it.
	result, err := tx.ExecContext(ctx,
		`UPDATE credentials
		 SET signature_counter = ?, backup_state = ?, last_used_at = ?
		 WHERE id = ? AND signature_counter = ?`,
		newCounter, backupState, s.now().UTC().UnixMilli(),
		credentialID, prevCounter)
	if err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	if affected == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = ?)`, credentialID).
			Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
		}
		if !exists {
			return passkey.ErrCredentialNotFound
		}
		return passkey.ErrConcurrentAssertionConflict
	}

	if devicePublicKey != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO device_public_keys (credential_id, public_key, created_at)
			 VALUES (?, ?, ?)`,
			credentialID, devicePublicKey, s.now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("%w: insert device key: %v", passkey.ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) CredentialIDIsUnused(ctx context.Context, credentialID []byte) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = ?)`, credentialID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	return !exists, nil
}

const selectCredential = `
	SELECT c.id, c.user_handle, c.public_key, c.attestation_type, c.transports,
	       c.user_present, c.user_verified, c.backup_eligible, c.backup_state,
	       c.signature_counter, c.attestation_format, c.attestation_object,
	       c.client_data_hash, c.aaguid, c.created_at, c.last_used_at
	FROM credentials c`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*passkey.Credential, error) {
	var credential passkey.Credential
	var transports string
	var createdAt, lastUsedAt int64

	err := row.Scan(&credential.ID, &credential.UserHandle, &credential.PublicKey,
		&credential.AttestationType, &transports,
		&credential.Flags.UserPresent, &credential.Flags.UserVerified,
		&credential.Flags.BackupEligible, &credential.Flags.BackupState,
		&credential.SignatureCounter, &credential.Attestation.Format,
		&credential.Attestation.Object, &credential.Attestation.ClientDataHash,
		&credential.Attestation.AAGUID, &createdAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan credential: %v", passkey.ErrStorageUnavailable, err)
	}

	if err := json.Unmarshal([]byte(transports), &credential.Transports); err != nil {
		credential.Transports = []protocol.AuthenticatorTransport{}
	}
	credential.CreatedAt = time.UnixMilli(createdAt).UTC()
	credential.LastUsedAt = time.UnixMilli(lastUsedAt).UTC()
	return &credential, nil
}

func (s *Store) loadDeviceKeys(ctx context.Context, credential *passkey.Credential) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT public_key FROM device_public_keys
		 WHERE credential_id = ? ORDER BY created_at, rowid`,
		credential.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key []byte
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
		}
		credential.DevicePublicKeys = append(credential.DevicePublicKeys, key)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", passkey.ErrStorageUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
