package domain

import "time"

// PaymentStatus is the lifecycle state of a PaymentRecord. It only ever
// transitions Unclaimed -> Claimed, never back.
type PaymentStatus string

const (
	PaymentUnclaimed PaymentStatus = "unclaimed"
	PaymentClaimed   PaymentStatus = "claimed"
)

// NewPayment is the ingestion worker's input to insert_payment: a
// just-observed confirmed transfer that passed the filter pipeline.
type NewPayment struct {
	PID         PaymentId
	TxID        string
	Amount      int64
	BlockHeight int64
	DetectedAt  time.Time
}

// PaymentRecord is the durable row for a payment. ClaimedAt is set iff
// Status is PaymentClaimed.
type PaymentRecord struct {
	PID         PaymentId
	TxID        string
	Amount      int64
	BlockHeight int64
	Status      PaymentStatus
	CreatedAt   time.Time
	ClaimedAt   *time.Time
}

// ClaimOutcome is returned by claim_payment when exactly one row transitions
// from Unclaimed to Claimed.
type ClaimOutcome struct {
	PID         PaymentId
	TxID        string
	Amount      int64
	BlockHeight int64
	ClaimedAt   time.Time
}

// NewServiceToken is the redemption engine's input to insert_token.
type NewServiceToken struct {
	Token    ServiceToken
	PID      PaymentId
	Amount   int64
	IssuedAt time.Time
}

// ServiceTokenRecord is the durable row for a minted token. RevokedAt is
// write-once: once set, later revocation attempts must not change it.
type ServiceTokenRecord struct {
	Token        ServiceToken
	PID          PaymentId
	Amount       int64
	IssuedAt     time.Time
	RevokedAt    *time.Time
	RevokeReason *string
	AbuseScore   int16
}

// IsRevoked reports whether the token has been revoked.
func (r ServiceTokenRecord) IsRevoked() bool {
	return r.RevokedAt != nil
}

// RevokeTokenRequest is the admin revocation input: the token plus optional
// reason and abuse score adjustments.
type RevokeTokenRequest struct {
	Token      ServiceToken
	Reason     *string
	AbuseScore *int16
}
