package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pushbridge/internal/model"
)

// Client is a stateless wrapper around the remote push/device/SMS API.
// It carries no retry logic and no connection state; callers that want
// retries schedule them themselves.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient creates a client for the given API base URL and key.
func NewClient(base, apiKey string) *Client {
	return &Client{
		base:   base,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Access-Token", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// CurrentUser fetches the signed-in account. This is the call the login
// flow uses to validate an API key before the stream is ever started.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Devices lists the account's active devices.
func (c *Client) Devices(ctx context.Context) ([]model.Device, error) {
	var out struct {
		Devices []model.Device `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}

	active := out.Devices[:0]
	for _, d := range out.Devices {
		if d.Active {
			active = append(active, d)
		}
	}
	return active, nil
}

// Pushes lists recent pushes, newest first.
func (c *Client) Pushes(ctx context.Context, limit int) ([]model.Push, error) {
	if limit <= 0 {
		limit = 20
	}
	var out struct {
		Pushes []model.Push `json:"pushes"`
	}
	path := fmt.Sprintf("/pushes?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Pushes, nil
}

// CreatePush sends a note or link push.
func (c *Client) CreatePush(ctx context.Context, req *model.PushRequest) (*model.Push, error) {
	var push model.Push
	if err := c.do(ctx, http.MethodPost, "/pushes", req, &push); err != nil {
		return nil, err
	}
	return &push, nil
}

// DeletePush removes a push by iden.
func (c *Client) DeletePush(ctx context.Context, iden string) error {
	return c.do(ctx, http.MethodDelete, "/pushes/"+iden, nil, nil)
}

// ephemeral is the envelope for all fire-and-forget messaging requests.
type ephemeral struct {
	Type string      `json:"type"`
	Push interface{} `json:"push"`
}

// SendSMS asks the phone identified by deviceIden to send an SMS.
func (c *Client) SendSMS(ctx context.Context, userIden, deviceIden, phoneNumber, message string) error {
	return c.do(ctx, http.MethodPost, "/ephemerals", &ephemeral{
		Type: "push",
		Push: map[string]string{
			"type":               "messaging_extension_reply",
			"package_name":       "com.pushbullet.android",
			"source_user_iden":   userIden,
			"target_device_iden": deviceIden,
			"conversation_iden":  phoneNumber,
			"message":            message,
		},
	}, nil)
}

// RequestThreadList asks the phone for its SMS thread list. The reply
// arrives later as a messaging_extension_reply push on the stream.
func (c *Client) RequestThreadList(ctx context.Context, userIden, deviceIden string) error {
	return c.do(ctx, http.MethodPost, "/ephemerals", &ephemeral{
		Type: "push",
		Push: map[string]string{
			"type":               "messaging_extension_list_threads",
			"package_name":       "com.pushbullet.android",
			"source_user_iden":   userIden,
			"target_device_iden": deviceIden,
		},
	}, nil)
}

// RequestMessageList asks the phone for the messages of one thread.
func (c *Client) RequestMessageList(ctx context.Context, userIden, deviceIden, threadID string) error {
	return c.do(ctx, http.MethodPost, "/ephemerals", &ephemeral{
		Type: "push",
		Push: map[string]string{
			"type":               "messaging_extension_list_messages",
			"package_name":       "com.pushbullet.android",
			"source_user_iden":   userIden,
			"target_device_iden": deviceIden,
			"thread_id":          threadID,
		},
	}, nil)
}
