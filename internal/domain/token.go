package domain

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// TokenSize is the fixed byte length of a ServiceToken.
const TokenSize = 32

// TokenHexLen is the fixed hex-encoded length of a ServiceToken.
const TokenHexLen = TokenSize * 2

// tokenDomainSeparator is the mandatory byte placed between the PID hex
// string and the txid ASCII bytes before hashing. It is part of the fixed
// derivation input, so every derived token depends on it.
const tokenDomainSeparator = byte('|')

// ServiceToken is the 32-byte deterministic capability minted on successful
// redemption. The zero value is not a valid token; always construct one via
// ParseToken or DeriveServiceToken.
type ServiceToken [TokenSize]byte

// ErrInvalidToken is returned by ParseToken when the input is not exactly
// TokenHexLen hex characters.
var ErrInvalidToken = fmt.Errorf("invalid service token: must be %d lowercase hex characters", TokenHexLen)

// ParseToken parses a hex string into a ServiceToken. Uppercase hex is
// accepted and canonicalized.
func ParseToken(s string) (ServiceToken, error) {
	var tok ServiceToken
	if len(s) != TokenHexLen {
		return tok, ErrInvalidToken
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return tok, ErrInvalidToken
	}
	copy(tok[:], b)
	return tok, nil
}

// String returns the canonical lowercase hex form of the token.
func (t ServiceToken) String() string {
	return hex.EncodeToString(t[:])
}

// Bytes returns the raw byte form of the token.
func (t ServiceToken) Bytes() []byte {
	return t[:]
}

// TokenFromBytes builds a ServiceToken from a raw byte slice read back from
// storage. The slice must be exactly TokenSize bytes.
func TokenFromBytes(b []byte) (ServiceToken, error) {
	var tok ServiceToken
	if len(b) != TokenSize {
		return tok, fmt.Errorf("invalid service token bytes: want %d, got %d", TokenSize, len(b))
	}
	copy(tok[:], b)
	return tok, nil
}

// DeriveServiceToken computes SHA3-256(pid_hex_ascii || '|' || txid_ascii).
// The derivation is a pure function of (pid, txid): stable across retries,
// processes, and time.
func DeriveServiceToken(pid PaymentId, txid string) ServiceToken {
	h := sha3.New256()
	h.Write([]byte(pid.String()))
	h.Write([]byte{tokenDomainSeparator})
	h.Write([]byte(txid))

	var tok ServiceToken
	copy(tok[:], h.Sum(nil))
	return tok
}
