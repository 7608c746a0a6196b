// Package push talks to the mobile push provider.
//
// The provider contract is "send one batch of messages, get one per-token
// outcome back". Provider-specific error codes are folded into a small
// canonical fault taxonomy so the fan-out can decide what to do with a
// token without knowing which provider reported it.
package push

import (
	"context"
	"strings"
)

// DefaultChunkSize bounds one provider call. Providers impose a maximum
// batch size per request; keep this at or below the limit of the provider
// in use.
const DefaultChunkSize = 450

// Message is one push notification addressed to one device token.
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// Fault is the canonical classification of a failed per-token outcome.
type Fault string

const (
	// FaultRegistrationInvalid: the token no longer addresses a device
	// (app uninstalled, token rotated). The device should be disabled.
	FaultRegistrationInvalid Fault = "registration-invalid"
	// FaultCredentialsInvalid: the provider rejected the credentials bound
	// to this token. The device should be disabled.
	FaultCredentialsInvalid Fault = "credentials-invalid"
	// FaultRateLimited: the provider throttled this send. The token stays
	// enabled; the next tick retries naturally.
	FaultRateLimited Fault = "rate-limited"
	// FaultOther: transport errors and anything unclassified.
	FaultOther Fault = "other"
)

// Invalid reports whether the fault means the token should be disabled.
func (f Fault) Invalid() bool {
	return f == FaultRegistrationInvalid || f == FaultCredentialsInvalid
}

// Ticket is the per-token outcome of one provider call.
type Ticket struct {
	OK     bool
	Fault  Fault
	Detail string
}

// Sender sends ONE chunk of messages and returns one ticket per message,
// in order. A returned error means the whole chunk failed in transport
// (no tickets).
type Sender interface {
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}

// ValidToken is the local token format check applied before spending a
// provider call on a token.
func ValidToken(token string) bool {
	token = strings.TrimSpace(token)
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}

// Chunk splits msgs into provider-sized batches. size <= 0 falls back to
// DefaultChunkSize.
func Chunk(msgs []Message, size int) [][]Message {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(msgs) == 0 {
		return nil
	}
	out := make([][]Message, 0, (len(msgs)+size-1)/size)
	for len(msgs) > size {
		out = append(out, msgs[:size])
		msgs = msgs[size:]
	}
	return append(out, msgs)
}

// classify maps a provider error code onto the canonical taxonomy.
func classify(code string) Fault {
	switch code {
	case "DeviceNotRegistered", "registration-token-not-registered":
		return FaultRegistrationInvalid
	case "InvalidCredentials", "mismatched-credential":
		return FaultCredentialsInvalid
	case "MessageRateExceeded", "message-rate-exceeded":
		return FaultRateLimited
	default:
		return FaultOther
	}
}
