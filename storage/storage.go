// Package storage persists the settlement-intent journal. The journal exists
// so the duplicate-payment guard survives a process restart; losing it never
// unwinds a transfer that was already broadcast.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storage: path must be configured")

// ErrNotFound is returned when an intent is absent from the journal.
var ErrNotFound = errors.New("storage: intent not found")

const schema = `
CREATE TABLE IF NOT EXISTS settlement_intents (
    intent_id     TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    loan_id       TEXT NOT NULL,
    recipient     TEXT NOT NULL,
    amount_atomic TEXT NOT NULL,
    chain         TEXT NOT NULL,
    asset_kind    TEXT NOT NULL,
    tx_id         TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settlement_intents_loan ON settlement_intents(loan_id);
`

// IntentRecord is one journal row.
type IntentRecord struct {
	IntentID     string
	Kind         string
	LoanID       string
	Recipient    string
	AmountAtomic string
	Chain        string
	AssetKind    string
	TxID         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Journal wraps the settlement persistence layer.
type Journal struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordIntent inserts a new intent row. Inserting an id that already exists
// is an error; intent ids are minted once per pipeline run.
func (j *Journal) RecordIntent(ctx context.Context, record IntentRecord) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("storage: journal not configured")
	}
	now := time.Now().UTC()
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO settlement_intents(intent_id, kind, loan_id, recipient, amount_atomic, chain, asset_kind, tx_id, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, record.IntentID, record.Kind, record.LoanID, record.Recipient, record.AmountAtomic, record.Chain, record.AssetKind, record.TxID, now, now)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

// RecordTx marks the intent as sent. The transaction id is written once; a
// second write for the same intent is rejected so the journal mirrors the
// at-most-one-transfer discipline.
func (j *Journal) RecordTx(ctx context.Context, intentID, txID string) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("storage: journal not configured")
	}
	result, err := j.db.ExecContext(ctx, `
        UPDATE settlement_intents SET tx_id = ?, updated_at = ? WHERE intent_id = ? AND tx_id = ''
    `, txID, time.Now().UTC(), intentID)
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("storage: intent %s missing or already sent", intentID)
	}
	return nil
}

// Intent loads one journal row.
func (j *Journal) Intent(ctx context.Context, intentID string) (IntentRecord, error) {
	if j == nil || j.db == nil {
		return IntentRecord{}, fmt.Errorf("storage: journal not configured")
	}
	row := j.db.QueryRowContext(ctx, `
        SELECT intent_id, kind, loan_id, recipient, amount_atomic, chain, asset_kind, tx_id, created_at, updated_at
        FROM settlement_intents WHERE intent_id = ?
    `, intentID)
	var record IntentRecord
	err := row.Scan(&record.IntentID, &record.Kind, &record.LoanID, &record.Recipient, &record.AmountAtomic,
		&record.Chain, &record.AssetKind, &record.TxID, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return IntentRecord{}, ErrNotFound
	}
	if err != nil {
		return IntentRecord{}, fmt.Errorf("load intent: %w", err)
	}
	return record, nil
}

// SentTxForLoan returns the recorded transaction id for the most recent sent
// intent of the given kind on a loan, or "" when none exists. Orchestrators
// consult this on startup to restore the duplicate-payment guard.
func (j *Journal) SentTxForLoan(ctx context.Context, loanID, kind string) (string, error) {
	if j == nil || j.db == nil {
		return "", fmt.Errorf("storage: journal not configured")
	}
	row := j.db.QueryRowContext(ctx, `
        SELECT tx_id FROM settlement_intents
        WHERE loan_id = ? AND kind = ? AND tx_id != ''
        ORDER BY updated_at DESC LIMIT 1
    `, loanID, kind)
	var txID string
	err := row.Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load sent tx: %w", err)
	}
	return txID, nil
}
