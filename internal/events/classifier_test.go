package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pushbridge/internal/model"
	"pushbridge/internal/notify"
	"pushbridge/internal/otp"
)

type mockPresenter struct {
	mu   sync.Mutex
	reqs []*notify.Request
}

func (m *mockPresenter) Present(req *notify.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return req.ID, nil
}

func (m *mockPresenter) requests() []*notify.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*notify.Request(nil), m.reqs...)
}

type mockMessaging struct {
	calls chan string
	err   error
}

func newMockMessaging() *mockMessaging {
	return &mockMessaging{calls: make(chan string, 8)}
}

func (m *mockMessaging) RequestThreadList(ctx context.Context, deviceIden string) error {
	m.calls <- deviceIden
	return m.err
}

func (m *mockMessaging) waitCall(t *testing.T) string {
	t.Helper()
	select {
	case dev := <-m.calls:
		return dev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for thread refresh")
		return ""
	}
}

func (m *mockMessaging) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case dev := <-m.calls:
		t.Fatalf("unexpected thread refresh for device %q", dev)
	case <-time.After(20 * time.Millisecond):
	}
}

type mockSink struct {
	mu       sync.Mutex
	threads  []model.SMSThread
	messages []model.SMSMessage
}

func (m *mockSink) Threads(threads []model.SMSThread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = threads
}

func (m *mockSink) Messages(messages []model.SMSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
}

type mockRefresh struct {
	mu      sync.Mutex
	pushes  int
	devices int
}

func (m *mockRefresh) PushesChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes++
}

func (m *mockRefresh) DevicesChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices++
}

func setupClassifier() (*Classifier, *mockPresenter, *mockMessaging, *mockSink, *mockRefresh) {
	presenter := &mockPresenter{}
	messaging := newMockMessaging()
	sink := &mockSink{}
	refresh := &mockRefresh{}
	c := NewClassifier(presenter, messaging, sink, refresh)
	return c, presenter, messaging, sink, refresh
}

func TestHandleMalformedFrame(t *testing.T) {
	c, presenter, messaging, _, _ := setupClassifier()

	c.Handle([]byte("not json at all"))
	c.Handle([]byte(`{"type":"push"}`)) // push frame without payload
	c.Handle([]byte(`{"type":"weird"}`))
	c.Handle([]byte(`{"type":"nop"}`))

	if len(presenter.requests()) != 0 {
		t.Errorf("got %d notifications, want 0", len(presenter.requests()))
	}
	messaging.assertNoCall(t)
}

func TestHandleTickle(t *testing.T) {
	c, presenter, _, _, refresh := setupClassifier()

	c.Handle([]byte(`{"type":"tickle","subtype":"push"}`))
	c.Handle([]byte(`{"type":"tickle","subtype":"device"}`))

	if refresh.pushes != 1 || refresh.devices != 1 {
		t.Errorf("refresh signals = %d/%d, want 1/1", refresh.pushes, refresh.devices)
	}
	if len(presenter.requests()) != 0 {
		t.Errorf("tickle produced %d notifications, want 0", len(presenter.requests()))
	}
}

func TestHandleMirror(t *testing.T) {
	c, presenter, messaging, _, _ := setupClassifier()

	c.Handle([]byte(`{"type":"push","push":{"type":"mirror","title":"Bank","body":"code 551223","notification_id":"n42","source_device_iden":"d1"}}`))

	reqs := presenter.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(reqs))
	}
	if reqs[0].ID != "n42" || reqs[0].Title != "Bank" || reqs[0].Body != "code 551223" {
		t.Errorf("unexpected request %+v", reqs[0])
	}

	if dev := messaging.waitCall(t); dev != "d1" {
		t.Errorf("thread refresh for %q, want d1", dev)
	}
}

func TestHandleMirrorTitleFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		title string
	}{
		{
			name:  "application name fallback",
			frame: `{"type":"push","push":{"type":"mirror","application_name":"Messages","body":"hi"}}`,
			title: "Messages",
		},
		{
			name:  "generic fallback",
			frame: `{"type":"push","push":{"type":"mirror","body":"hi"}}`,
			title: "Notification",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, presenter, _, _, _ := setupClassifier()
			c.Handle([]byte(tt.frame))

			reqs := presenter.requests()
			if len(reqs) != 1 {
				t.Fatalf("got %d notifications, want 1", len(reqs))
			}
			if reqs[0].Title != tt.title {
				t.Errorf("title = %q, want %q", reqs[0].Title, tt.title)
			}
			if reqs[0].ID == "" {
				t.Error("missing generated notification id")
			}
		})
	}
}

func TestHandleNoteAndLink(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		id    string
		title string
		body  string
	}{
		{
			name:  "note",
			frame: `{"type":"push","push":{"type":"note","iden":"p1","title":"Hello","body":"World"}}`,
			id:    "push-p1",
			title: "Hello",
			body:  "World",
		},
		{
			name:  "link with url body",
			frame: `{"type":"push","push":{"type":"link","iden":"p2","url":"https://example.com"}}`,
			id:    "push-p2",
			title: "New Push",
			body:  "https://example.com",
		},
		{
			name:  "link without url",
			frame: `{"type":"push","push":{"type":"link","iden":"p3"}}`,
			id:    "push-p3",
			title: "New Push",
			body:  "Link received",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, presenter, _, _, _ := setupClassifier()
			c.Handle([]byte(tt.frame))

			reqs := presenter.requests()
			if len(reqs) != 1 {
				t.Fatalf("got %d notifications, want 1", len(reqs))
			}
			if reqs[0].ID != tt.id || reqs[0].Title != tt.title || reqs[0].Body != tt.body {
				t.Errorf("got %+v", reqs[0])
			}
		})
	}
}

func TestHandleSMSChanged(t *testing.T) {
	c, presenter, messaging, _, _ := setupClassifier()
	c.SetUserID("u1")

	c.Handle([]byte(`{"type":"push","push":{"type":"sms_changed","source_device_iden":"d9","notifications":[
		{"thread_id":"t1","title":"Alice","body":"older","timestamp":100},
		{"thread_id":"t2","title":"Bob","body":"newest","timestamp":300},
		{"thread_id":"t3","title":"Carol","body":"middle","timestamp":200}
	]}}`))

	reqs := presenter.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(reqs))
	}
	if reqs[0].ID != "sms-t2" || reqs[0].Title != "Bob" || reqs[0].Body != "newest" {
		t.Errorf("got %+v, want the most recent summary", reqs[0])
	}

	if dev := messaging.waitCall(t); dev != "d9" {
		t.Errorf("thread refresh for %q, want d9", dev)
	}
}

func TestHandleSMSChangedWithoutUser(t *testing.T) {
	c, _, messaging, _, _ := setupClassifier()

	c.Handle([]byte(`{"type":"push","push":{"type":"sms_changed","source_device_iden":"d9"}}`))

	messaging.assertNoCall(t)
}

func TestHandleSMSChangedRefreshFailureSwallowed(t *testing.T) {
	c, _, messaging, _, _ := setupClassifier()
	c.SetUserID("u1")
	messaging.err = errors.New("phone unreachable")

	c.Handle([]byte(`{"type":"push","push":{"type":"sms_changed","source_device_iden":"d9"}}`))

	// The failure must be swallowed; the call still happens.
	messaging.waitCall(t)
}

func TestHandleMessagingReplyThreads(t *testing.T) {
	c, presenter, _, sink, _ := setupClassifier()

	c.Handle([]byte(`{"type":"push","push":{"type":"messaging_extension_reply","data":{"threads":[
		{"id":"a","timestamp":100},
		{"id":"b","timestamp":300},
		{"id":"c","timestamp":200}
	]}}}`))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.threads) != 3 {
		t.Fatalf("got %d threads, want 3", len(sink.threads))
	}
	got := []int64{sink.threads[0].Timestamp, sink.threads[1].Timestamp, sink.threads[2].Timestamp}
	if got[0] != 300 || got[1] != 200 || got[2] != 100 {
		t.Errorf("threads sorted %v, want [300 200 100]", got)
	}
	if len(presenter.requests()) != 0 {
		t.Errorf("thread listing produced %d notifications, want 0", len(presenter.requests()))
	}
}

func TestHandleMessagingReplyMessages(t *testing.T) {
	c, presenter, _, sink, _ := setupClassifier()

	c.Handle([]byte(`{"type":"push","push":{"type":"messaging_extension_reply","data":{"messages":[
		{"id":"m3","body":"third","timestamp":3},
		{"id":"m1","body":"first","timestamp":1},
		{"id":"m2","body":"second","timestamp":2}
	]}}}`))

	sink.mu.Lock()
	got := []int64{sink.messages[0].Timestamp, sink.messages[1].Timestamp, sink.messages[2].Timestamp}
	sink.mu.Unlock()
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("messages sorted %v, want [1 2 3]", got)
	}

	reqs := presenter.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(reqs))
	}
	if reqs[0].Body != "third" {
		t.Errorf("notified body %q, want the chronologically last message", reqs[0].Body)
	}
}

// fakePlatform lets the end-to-end tests drive the real presenter without a
// notification service.
type fakePlatform struct {
	mu      sync.Mutex
	created []*notify.Notification
	clicked func(id string, button int)
	closed  func(id string)
}

func (p *fakePlatform) Create(n *notify.Notification) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, n)
	return n.ID, nil
}

func (p *fakePlatform) OnClicked(fn func(id string, button int)) { p.clicked = fn }
func (p *fakePlatform) OnClosed(fn func(id string))              { p.closed = fn }
func (p *fakePlatform) Close() error                             { return nil }

type fakeClipboard struct {
	mu     sync.Mutex
	copied []string
}

func (c *fakeClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied = append(c.copied, text)
	return nil
}

func TestEndToEndMirrorWithOTP(t *testing.T) {
	platform := &fakePlatform{}
	clip := &fakeClipboard{}
	records := otp.NewRecords(0)
	presenter := notify.NewPresenter(platform, clip, records)
	messaging := newMockMessaging()
	c := NewClassifier(presenter, messaging, &mockSink{}, &mockRefresh{})
	c.SetUserID("u1")

	c.Handle([]byte(`{"type":"push","push":{"type":"mirror","title":"Bank","body":"code 551223","source_device_iden":"d1"}}`))

	platform.mu.Lock()
	if len(platform.created) != 1 {
		platform.mu.Unlock()
		t.Fatalf("got %d notifications, want exactly 1", len(platform.created))
	}
	n := platform.created[0]
	platform.mu.Unlock()

	if n.Title != "OTP: 551223" {
		t.Errorf("title = %q, want %q", n.Title, "OTP: 551223")
	}
	if len(n.Buttons) != 1 || n.Buttons[0] != "Copy OTP" {
		t.Errorf("buttons = %v, want one Copy OTP button", n.Buttons)
	}
	if dev := messaging.waitCall(t); dev != "d1" {
		t.Errorf("thread list request for %q, want d1", dev)
	}

	// Clicking the button copies the code; closing clears the record.
	platform.clicked(n.ID, 0)
	clip.mu.Lock()
	copied := append([]string(nil), clip.copied...)
	clip.mu.Unlock()
	if len(copied) != 1 || copied[0] != "551223" {
		t.Errorf("copied %v, want [551223]", copied)
	}

	platform.closed(n.ID)
	if records.Len() != 0 {
		t.Errorf("records remaining after close: %d", records.Len())
	}
}

func TestEndToEndDeviceTickle(t *testing.T) {
	platform := &fakePlatform{}
	records := otp.NewRecords(0)
	presenter := notify.NewPresenter(platform, &fakeClipboard{}, records)
	refresh := &mockRefresh{}
	c := NewClassifier(presenter, newMockMessaging(), &mockSink{}, refresh)

	c.Handle([]byte(`{"type":"tickle","subtype":"device"}`))

	if refresh.devices != 1 {
		t.Errorf("device refresh signals = %d, want 1", refresh.devices)
	}
	platform.mu.Lock()
	defer platform.mu.Unlock()
	if len(platform.created) != 0 {
		t.Errorf("tickle produced %d notifications, want 0", len(platform.created))
	}
}
