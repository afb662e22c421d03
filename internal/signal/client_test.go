package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jimsug/mtg-signal-bot/internal/alerts"
)

func TestClient_Send(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"timestamp":"1700000000000"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "+61400000000")
	err := c.Send(context.Background(), "group.abc123", "Lightning Bolt", []string{"aGVsbG8="})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/v2/send" {
		t.Errorf("request = %s %s, want POST /v2/send", gotMethod, gotPath)
	}
	if gotBody.Number != "+61400000000" {
		t.Errorf("number = %q", gotBody.Number)
	}
	if len(gotBody.Recipients) != 1 || gotBody.Recipients[0] != "group.abc123" {
		t.Errorf("recipients = %v", gotBody.Recipients)
	}
	if gotBody.Message != "Lightning Bolt" {
		t.Errorf("message = %q", gotBody.Message)
	}
	if len(gotBody.Base64Attachments) != 1 || gotBody.Base64Attachments[0] != "aGVsbG8=" {
		t.Errorf("attachments = %v", gotBody.Base64Attachments)
	}
}

func TestClient_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "+61400000000")
	err := c.Send(context.Background(), "nope", "hi", nil)
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}

func TestClient_Receive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/receive/+61400000000" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"envelope": {"source": "+61499999999", "sourceUuid": "uuid-1", "timestamp": 1700000000000,
				"dataMessage": {"timestamp": 1700000000000, "message": "[[Lightning Bolt]]",
					"groupInfo": {"groupId": "grp-1"}}}},
			{"envelope": {"source": "+61488888888", "timestamp": 1700000000001,
				"dataMessage": {"timestamp": 1700000000001, "message": ".Counterspell"}}}
		]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "+61400000000")
	envelopes, err := c.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(envelopes) != 2 {
		t.Fatalf("envelopes = %d, want 2", len(envelopes))
	}

	group := envelopes[0]
	if group.UserID() != "uuid-1" {
		t.Errorf("UserID = %q, want the uuid when present", group.UserID())
	}
	if group.Recipient() != "group.grp-1" {
		t.Errorf("Recipient = %q, want the group", group.Recipient())
	}
	if group.DataMessage.Message != "[[Lightning Bolt]]" {
		t.Errorf("message = %q", group.DataMessage.Message)
	}

	direct := envelopes[1]
	if direct.UserID() != "+61488888888" {
		t.Errorf("UserID = %q, want the number when no uuid", direct.UserID())
	}
	if direct.Recipient() != "+61488888888" {
		t.Errorf("Recipient = %q, want the sender for a DM", direct.Recipient())
	}
}

func TestClient_ReceiveReaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"envelope": {"source": "+61499999999", "timestamp": 1,
				"dataMessage": {"reaction": {"emoji": "❌", "targetAuthor": "+61400000000",
					"targetSentTimestamp": 1700000000000, "isRemove": false}}}}
		]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "+61400000000")
	envelopes, err := c.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(envelopes))
	}

	reaction := envelopes[0].DataMessage.Reaction
	if reaction == nil {
		t.Fatal("reaction not decoded")
	}
	if reaction.Emoji != "❌" || reaction.TargetSentTimestamp != 1700000000000 {
		t.Errorf("reaction = %+v", reaction)
	}
}

func TestAlertSink_Notify(t *testing.T) {
	var gotBody sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := NewAlertSink(NewClient(server.URL, "+61400000000"), "+61411111111")
	err := sink.Notify(context.Background(), alerts.Alert{
		UserID:      "uuid-1",
		RecentCount: 25,
		Window:      5 * time.Minute,
		At:          time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if len(gotBody.Recipients) != 1 || gotBody.Recipients[0] != "+61411111111" {
		t.Errorf("recipients = %v, want the owner", gotBody.Recipients)
	}
	if gotBody.Message == "" || gotBody.Message != "Abuse alert: user uuid-1 made 25 lookups in the last 5m0s." {
		t.Errorf("message = %q", gotBody.Message)
	}
}
