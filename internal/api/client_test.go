package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pushbridge/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	token  string
	body   map[string]interface{}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var recorded []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.RequestURI(),
			token:  r.Header.Get("Access-Token"),
		}
		if r.Body != nil {
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.body = body
			}
		}
		recorded = append(recorded, rec)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func TestCurrentUser(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"iden":"u1","email":"a@b.c","name":"A"}`)
	client := NewClient(srv.URL, "my-key")

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.Iden)

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/users/me", req.path)
	assert.Equal(t, "my-key", req.token)
}

func TestCurrentUserRejected(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{}`)
	client := NewClient(srv.URL, "bad-key")

	_, err := client.CurrentUser(context.Background())
	assert.Error(t, err)
}

func TestDevicesFiltersInactive(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK,
		`{"devices":[{"iden":"d1","active":true},{"iden":"d2","active":false},{"iden":"d3","active":true}]}`)
	client := NewClient(srv.URL, "k")

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "d1", devices[0].Iden)
	assert.Equal(t, "d3", devices[1].Iden)
	assert.Equal(t, "/devices", (*recorded)[0].path)
}

func TestPushes(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"pushes":[{"iden":"p1","type":"note"}]}`)
	client := NewClient(srv.URL, "k")

	pushes, err := client.Pushes(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	assert.Equal(t, "/pushes?limit=5", (*recorded)[0].path)
}

func TestPushesDefaultLimit(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"pushes":[]}`)
	client := NewClient(srv.URL, "k")

	_, err := client.Pushes(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "/pushes?limit=20", (*recorded)[0].path)
}

func TestCreatePush(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"iden":"p9","type":"note"}`)
	client := NewClient(srv.URL, "k")

	push, err := client.CreatePush(context.Background(), &model.PushRequest{
		Type:  "note",
		Title: "Hi",
		Body:  "There",
	})
	require.NoError(t, err)
	assert.Equal(t, "p9", push.Iden)

	req := (*recorded)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/pushes", req.path)
	assert.Equal(t, "note", req.body["type"])
}

func TestDeletePush(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "k")

	require.NoError(t, client.DeletePush(context.Background(), "p1"))
	req := (*recorded)[0]
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/pushes/p1", req.path)
}

func TestSendSMS(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "k")

	err := client.SendSMS(context.Background(), "u1", "d1", "+15551234", "hello")
	require.NoError(t, err)

	req := (*recorded)[0]
	assert.Equal(t, "/ephemerals", req.path)
	assert.Equal(t, "push", req.body["type"])

	push, ok := req.body["push"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "messaging_extension_reply", push["type"])
	assert.Equal(t, "d1", push["target_device_iden"])
	assert.Equal(t, "+15551234", push["conversation_iden"])
	assert.Equal(t, "hello", push["message"])
}

func TestRequestThreadList(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "k")

	require.NoError(t, client.RequestThreadList(context.Background(), "u1", "d1"))

	push := (*recorded)[0].body["push"].(map[string]interface{})
	assert.Equal(t, "messaging_extension_list_threads", push["type"])
	assert.Equal(t, "d1", push["target_device_iden"])
}

func TestRequestMessageList(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "k")

	require.NoError(t, client.RequestMessageList(context.Background(), "u1", "d1", "t7"))

	push := (*recorded)[0].body["push"].(map[string]interface{})
	assert.Equal(t, "messaging_extension_list_messages", push["type"])
	assert.Equal(t, "t7", push["thread_id"])
}
