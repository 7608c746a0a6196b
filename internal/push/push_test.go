package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"whisperd/pkg/logx"
)

func TestValidToken(t *testing.T) {
	t.Parallel()
	valid := []string{
		"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]",
		"ExpoPushToken[abc123]",
	}
	invalid := []string{
		"", "garbage", "ExponentPushToken[]", "ExponentPushToken[abc",
		"apns:deadbeef", "  ", "[abc]",
	}
	for _, tok := range valid {
		if !ValidToken(tok) {
			t.Errorf("ValidToken(%q) = false, want true", tok)
		}
	}
	for _, tok := range invalid {
		if ValidToken(tok) {
			t.Errorf("ValidToken(%q) = true, want false", tok)
		}
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()
	msgs := make([]Message, 7)
	chunks := Chunk(msgs, 3)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if got := Chunk(nil, 3); got != nil {
		t.Fatalf("empty input: %v", got)
	}
	// size <= 0 falls back to the default.
	if got := Chunk(msgs, 0); len(got) != 1 {
		t.Fatalf("default chunk size: %d chunks", len(got))
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code string
		want Fault
	}{
		{"DeviceNotRegistered", FaultRegistrationInvalid},
		{"registration-token-not-registered", FaultRegistrationInvalid},
		{"InvalidCredentials", FaultCredentialsInvalid},
		{"MessageRateExceeded", FaultRateLimited},
		{"SomethingElse", FaultOther},
		{"", FaultOther},
	}
	for _, tt := range tests {
		if got := classify(tt.code); got != tt.want {
			t.Errorf("classify(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
	if !FaultRegistrationInvalid.Invalid() || !FaultCredentialsInvalid.Invalid() {
		t.Error("invalid faults must report Invalid()")
	}
	if FaultRateLimited.Invalid() || FaultOther.Invalid() {
		t.Error("rate-limited/other must not report Invalid()")
	}
}

func TestClientSendParsesPerTokenTickets(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got []Message
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("request carried %d messages", len(got))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"status": "ok", "id": "t1"},
				{"status": "error", "message": "device gone", "details": map[string]any{"error": "DeviceNotRegistered"}},
				{"status": "error", "message": "slow down", "details": map[string]any{"error": "MessageRateExceeded"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL}, logx.Nop())
	msgs := []Message{
		{To: "ExponentPushToken[a]", Title: "x"},
		{To: "ExponentPushToken[b]", Title: "x"},
		{To: "ExponentPushToken[c]", Title: "x"},
	}
	tickets, err := c.Send(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("tickets = %d", len(tickets))
	}
	if !tickets[0].OK {
		t.Errorf("ticket 0: %+v", tickets[0])
	}
	if tickets[1].OK || tickets[1].Fault != FaultRegistrationInvalid {
		t.Errorf("ticket 1: %+v", tickets[1])
	}
	if tickets[2].OK || tickets[2].Fault != FaultRateLimited {
		t.Errorf("ticket 2: %+v", tickets[2])
	}
}

func TestClientSendTransportFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL}, logx.Nop())
	if _, err := c.Send(context.Background(), []Message{{To: "ExponentPushToken[a]"}}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestClientSendPadsShortResponses(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"status": "ok"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL}, logx.Nop())
	tickets, err := c.Send(context.Background(), []Message{
		{To: "ExponentPushToken[a]"}, {To: "ExponentPushToken[b]"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("tickets = %d", len(tickets))
	}
	if !tickets[0].OK || tickets[1].OK || tickets[1].Fault != FaultOther {
		t.Fatalf("tickets: %+v", tickets)
	}
}

func TestClientSendEmptyChunkIsNoop(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Endpoint: "http://127.0.0.1:1"}, logx.Nop())
	tickets, err := c.Send(context.Background(), nil)
	if err != nil || tickets != nil {
		t.Fatalf("empty chunk: %v %v", tickets, err)
	}
}
