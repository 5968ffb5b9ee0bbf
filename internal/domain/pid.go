// Package domain holds the strongly-typed identifiers and records shared by
// storage, cache, ingestion, and redemption: PaymentId, ServiceToken, and the
// persisted record shapes derived from them.
package domain

import (
	"encoding/hex"
	"fmt"
)

// PIDSize is the fixed byte length of a PaymentId.
const PIDSize = 8

// PIDHexLen is the fixed hex-encoded length of a PaymentId.
const PIDHexLen = PIDSize * 2

// PaymentId is the 8-byte correlation identifier embedded in a wallet
// transfer. The zero value is not a valid PID; always construct one via
// ParsePID.
type PaymentId [PIDSize]byte

// ErrInvalidPID is returned by ParsePID when the input is not exactly
// PIDHexLen hex characters.
var ErrInvalidPID = fmt.Errorf("invalid payment id: must be %d lowercase hex characters", PIDHexLen)

// ParsePID parses a hex string into a PaymentId. Uppercase hex is accepted
// and canonicalized; any other length or non-hex byte is rejected.
func ParsePID(s string) (PaymentId, error) {
	var pid PaymentId
	if len(s) != PIDHexLen {
		return pid, ErrInvalidPID
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return pid, ErrInvalidPID
	}
	copy(pid[:], b)
	return pid, nil
}

// String returns the canonical lowercase hex form of the PID.
func (p PaymentId) String() string {
	return hex.EncodeToString(p[:])
}

// Bytes returns the raw byte form of the PID.
func (p PaymentId) Bytes() []byte {
	return p[:]
}

// PIDFromBytes builds a PaymentId from a raw byte slice, for reconstructing
// values read back from storage. The slice must be exactly PIDSize bytes.
func PIDFromBytes(b []byte) (PaymentId, error) {
	var pid PaymentId
	if len(b) != PIDSize {
		return pid, fmt.Errorf("invalid payment id bytes: want %d, got %d", PIDSize, len(b))
	}
	copy(pid[:], b)
	return pid, nil
}
