package storage

import (
	"context"
	"errors"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := Open("file:journal_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestRecordAndLoadIntent(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	record := IntentRecord{
		IntentID:     "intent-1",
		Kind:         "close",
		LoanID:       "loan-9",
		Recipient:    "0xabc",
		AmountAtomic: "1000001",
		Chain:        "evm",
		AssetKind:    "token",
	}
	if err := journal.RecordIntent(ctx, record); err != nil {
		t.Fatalf("record intent: %v", err)
	}
	loaded, err := journal.Intent(ctx, "intent-1")
	if err != nil {
		t.Fatalf("load intent: %v", err)
	}
	if loaded.LoanID != "loan-9" || loaded.AmountAtomic != "1000001" || loaded.TxID != "" {
		t.Fatalf("unexpected record: %+v", loaded)
	}
}

func TestRecordTxWritesOnce(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	if err := journal.RecordIntent(ctx, IntentRecord{IntentID: "intent-2", Kind: "open", LoanID: "loan-1", Recipient: "addr", AmountAtomic: "5", Chain: "btc", AssetKind: "native"}); err != nil {
		t.Fatalf("record intent: %v", err)
	}
	if err := journal.RecordTx(ctx, "intent-2", "tx-aaa"); err != nil {
		t.Fatalf("record tx: %v", err)
	}
	if err := journal.RecordTx(ctx, "intent-2", "tx-bbb"); err == nil {
		t.Fatal("second tx write for the same intent must fail")
	}
	loaded, err := journal.Intent(ctx, "intent-2")
	if err != nil {
		t.Fatalf("load intent: %v", err)
	}
	if loaded.TxID != "tx-aaa" {
		t.Fatalf("tx id = %q, want tx-aaa", loaded.TxID)
	}
}

func TestSentTxForLoan(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	got, err := journal.SentTxForLoan(ctx, "loan-5", "close")
	if err != nil {
		t.Fatalf("sent tx lookup: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty tx id, got %q", got)
	}
	if err := journal.RecordIntent(ctx, IntentRecord{IntentID: "intent-3", Kind: "close", LoanID: "loan-5", Recipient: "addr", AmountAtomic: "7", Chain: "evm", AssetKind: "native"}); err != nil {
		t.Fatalf("record intent: %v", err)
	}
	if err := journal.RecordTx(ctx, "intent-3", "tx-ccc"); err != nil {
		t.Fatalf("record tx: %v", err)
	}
	got, err = journal.SentTxForLoan(ctx, "loan-5", "close")
	if err != nil {
		t.Fatalf("sent tx lookup: %v", err)
	}
	if got != "tx-ccc" {
		t.Fatalf("tx id = %q, want tx-ccc", got)
	}
	if _, err := journal.Intent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
