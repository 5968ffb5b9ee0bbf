package ingest

import (
	"context"
)

// Transfer is one incoming wallet transfer entry as reported by a
// TransferSource, before filtering.
type Transfer struct {
	TxID string
	// RawPID is the embedded correlation identifier extracted from the
	// transfer's payment ID field, still unvalidated hex -- nil when the
	// transfer carries no embedded identifier at all. The filter pipeline
	// distinguishes "no PID" from "PID present but malformed".
	RawPID *string
	// Confirmed is false for entries the wallet hasn't finished confirming
	// yet; unconfirmed entries are never eligible for ingestion.
	Confirmed   bool
	Amount      int64
	BlockHeight int64
}

// TransferSource is the external wallet RPC capability, treated as opaque
// per spec (Out of scope: "The wallet RPC itself").
type TransferSource interface {
	// WalletHeight returns the wallet's current block height.
	WalletHeight(ctx context.Context) (int64, error)
	// FetchTransfers returns incoming transfers with block height in the
	// inclusive range [minHeight, maxHeight].
	FetchTransfers(ctx context.Context, minHeight, maxHeight int64) ([]Transfer, error)
}
