// Package signal is a thin client for signal-cli-rest-api, the sidecar
// container that owns the actual Signal session. The bot only needs two
// verbs: send a message and poll for inbound envelopes.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jimsug/mtg-signal-bot/internal/alerts"
)

const defaultTimeout = 30 * time.Second

// Client talks to one signal-cli-rest-api instance on behalf of one
// registered phone number.
type Client struct {
	baseURL    string
	number     string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL (for example
// http://localhost:8080) sending as the given E.164 number.
func NewClient(baseURL, number string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		number:     number,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// sendRequest is the /v2/send payload.
type sendRequest struct {
	Message           string   `json:"message"`
	Number            string   `json:"number"`
	Recipients        []string `json:"recipients"`
	Base64Attachments []string `json:"base64_attachments,omitempty"`
}

// Send delivers a message to one recipient: an E.164 number for a direct
// message, or a "group.<id>" identifier for a group. Implements
// bot.Sender.
func (c *Client) Send(ctx context.Context, recipient, message string, base64Attachments []string) error {
	body, err := json.Marshal(sendRequest{
		Message:           message,
		Number:            c.number,
		Recipients:        []string{recipient},
		Base64Attachments: base64Attachments,
	})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send to %s returned HTTP %d: %s", recipient, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Envelope is one inbound item from /v1/receive.
type Envelope struct {
	Source      string       `json:"source"`
	SourceUUID  string       `json:"sourceUuid"`
	Timestamp   int64        `json:"timestamp"`
	DataMessage *DataMessage `json:"dataMessage"`
}

// DataMessage is the text payload of an envelope, if any.
type DataMessage struct {
	Timestamp int64      `json:"timestamp"`
	Message   string     `json:"message"`
	GroupInfo *GroupInfo `json:"groupInfo"`
	Reaction  *Reaction  `json:"reaction"`
}

// GroupInfo identifies the group a message was posted in.
type GroupInfo struct {
	GroupID string `json:"groupId"`
}

// Reaction is an emoji reaction to an earlier message.
type Reaction struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp"`
	IsRemove            bool   `json:"isRemove"`
}

// Recipient returns where a reply to this envelope should go: the group
// it arrived in, or the sender for a direct message.
func (e *Envelope) Recipient() string {
	if e.DataMessage != nil && e.DataMessage.GroupInfo != nil && e.DataMessage.GroupInfo.GroupID != "" {
		return "group." + e.DataMessage.GroupInfo.GroupID
	}
	return e.Source
}

// UserID returns the stable sender identifier, preferring the UUID over
// the phone number.
func (e *Envelope) UserID() string {
	if e.SourceUUID != "" {
		return e.SourceUUID
	}
	return e.Source
}

// receiveItem wraps each envelope in the /v1/receive response.
type receiveItem struct {
	Envelope Envelope `json:"envelope"`
}

// Receive polls for queued inbound envelopes. signal-cli-rest-api in
// normal mode blocks briefly and returns whatever arrived, so callers
// just loop on this.
func (c *Client) Receive(ctx context.Context) ([]Envelope, error) {
	url := c.baseURL + "/v1/receive/" + c.number
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create receive request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("receive returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var items []receiveItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode receive response: %w", err)
	}

	envelopes := make([]Envelope, 0, len(items))
	for _, item := range items {
		envelopes = append(envelopes, item.Envelope)
	}
	return envelopes, nil
}

// AlertSink delivers abuse alerts to the bot owner over Signal.
type AlertSink struct {
	client *Client
	owner  string
}

// NewAlertSink creates a sink that messages the owner number.
func NewAlertSink(client *Client, owner string) *AlertSink {
	return &AlertSink{client: client, owner: owner}
}

// Notify implements alerts.Sink.
func (s *AlertSink) Notify(ctx context.Context, alert alerts.Alert) error {
	msg := fmt.Sprintf("Abuse alert: user %s made %d lookups in the last %s.",
		alert.UserID, alert.RecentCount, alert.Window)
	return s.client.Send(ctx, s.owner, msg, nil)
}

// Name implements alerts.Sink.
func (s *AlertSink) Name() string { return "signal-owner" }
