package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ===== Clock =====

type systemClock struct{}

// NewSystemClock returns a Clock implementation backed by time.Now.
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// ===== ID Generator =====

type uuidGenerator struct{}

// NewUUIDGenerator returns an IDGenerator that produces v7 UUIDs where available, falling back to v4.
func NewUUIDGenerator() IDGenerator {
	return uuidGenerator{}
}

func (uuidGenerator) NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ===== Token Generator =====

type hexTokenGenerator struct{}

// NewHexTokenGenerator returns a TokenGenerator minting 32-character hex
// tokens from 16 bytes of crypto/rand.
func NewHexTokenGenerator() TokenGenerator {
	return hexTokenGenerator{}
}

func (hexTokenGenerator) NewToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a UUID
		// rather than handing out a predictable token.
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
