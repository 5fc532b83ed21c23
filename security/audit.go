package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Auditor handles security event logging with PII protection. Owner
// identifiers are hashed before they reach the log stream; token values are
// never logged at all.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	OwnerID   string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII. Each event carries a
// unique event ID so downstream alerting can deduplicate and correlate.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_id", uuid.NewString(),
		"event_type", event.Type,
		"owner_id_hash", hashForLogging(event.OwnerID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogSilentDeny logs a request that was dropped without a response.
func (a *Auditor) LogSilentDeny(clientID, reason string) {
	a.LogEvent(Event{
		Type:     "silent_deny",
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeIssued logs issuance of an authorization code.
func (a *Auditor) LogCodeIssued(ownerID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "authorization_code_issued",
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenIssued logs issuance of an access/refresh token pair.
func (a *Auditor) LogTokenIssued(ownerID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "token_issued",
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs a refresh-token rotation.
func (a *Auditor) LogTokenRefreshed(ownerID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "token_refreshed",
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogAuthFailure logs an authentication or grant-validation failure.
func (a *Auditor) LogAuthFailure(ownerID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     "auth_failure",
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAccessDenied logs an owner's refusal at the consent step.
func (a *Auditor) LogAccessDenied(clientID string) {
	a.LogEvent(Event{
		Type:     "access_denied",
		ClientID: clientID,
	})
}

// hashForLogging creates a truncated SHA256 hash of sensitive data for
// logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
