package entity

import "time"

// QRChallenge is the ephemeral pairing challenge the phone scans. A new
// challenge replaces the previous one on every QR event from the protocol
// library; it is dropped on connect, delete or expiry.
type QRChallenge struct {
	SessionID          string    `json:"sessionId"`
	Code               string    `json:"qrCode"`
	Attempt            int       `json:"attempt"`
	MaxAttempts        int       `json:"maxAttempts"`
	IssuedAt           time.Time `json:"issuedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	MaxAttemptsReached bool      `json:"maxAttemptsReached"`
}

// NewQRChallenge creates a challenge for the given attempt that expires
// after ttl. The caller passes a shorter ttl for the terminal attempt,
// because the session auto-disconnects shortly after it; reaching
// maxAttempts sets MaxAttemptsReached.
func NewQRChallenge(sessionID, code string, attempt, maxAttempts int, ttl time.Duration) *QRChallenge {
	now := time.Now()
	q := &QRChallenge{
		SessionID:   sessionID,
		Code:        code,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	if attempt >= maxAttempts {
		q.MaxAttemptsReached = true
	}
	return q
}

// Expired reports whether the challenge is past its expiry.
func (q *QRChallenge) Expired() bool {
	return time.Now().After(q.ExpiresAt)
}
