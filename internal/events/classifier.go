package events

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"pushbridge/internal/model"
	"pushbridge/internal/notify"
	"pushbridge/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Presenter renders a classified event as a platform notification.
type Presenter interface {
	Present(req *notify.Request) (string, error)
}

// Messaging issues fire-and-forget refresh requests to the remote API on
// behalf of the signed-in user.
type Messaging interface {
	RequestThreadList(ctx context.Context, deviceIden string) error
}

// SMSSink receives thread and message listings for display. It is the
// boundary to the UI layer, which is not part of the core.
type SMSSink interface {
	Threads(threads []model.SMSThread)
	Messages(messages []model.SMSMessage)
}

// Refresh carries tickle signals to whoever caches REST resources.
type Refresh interface {
	PushesChanged()
	DevicesChanged()
}

const ephemeralTimeout = 15 * time.Second

// Classifier parses inbound stream frames into typed events and dispatches
// them. Malformed frames are logged and dropped, never fatal.
type Classifier struct {
	presenter Presenter
	messaging Messaging
	sink      SMSSink
	refresh   Refresh

	mu     sync.Mutex
	userID string
}

// NewClassifier wires a classifier to its collaborators.
func NewClassifier(presenter Presenter, messaging Messaging, sink SMSSink, refresh Refresh) *Classifier {
	return &Classifier{
		presenter: presenter,
		messaging: messaging,
		sink:      sink,
		refresh:   refresh,
	}
}

// SetUserID records the signed-in user, which gates the thread refresh on
// sms_changed pushes.
func (c *Classifier) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// Handle processes one raw frame from the stream.
func (c *Classifier) Handle(frame []byte) {
	var f model.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		logger.Warn("malformed stream frame dropped", zap.Error(err))
		return
	}

	switch f.Type {
	case model.FrameNop:
		// keep-alive
	case model.FrameTickle:
		c.handleTickle(f.Subtype)
	case model.FramePush:
		if f.Push == nil {
			logger.Warn("push frame without payload dropped")
			return
		}
		c.handlePush(f.Push)
	default:
		// unknown frame types are ignored without error
	}
}

func (c *Classifier) handleTickle(subtype string) {
	if c.refresh == nil {
		return
	}
	switch subtype {
	case model.TickleSubtypePush:
		c.refresh.PushesChanged()
	case model.TickleSubtypeDevice:
		c.refresh.DevicesChanged()
	}
}

func (c *Classifier) handlePush(push *model.Push) {
	switch push.Type {
	case model.PushMirror:
		c.handleMirror(push)
	case model.PushNote, model.PushLink:
		c.handleNoteOrLink(push)
	case model.PushSMSChanged:
		c.handleSMSChanged(push)
	case model.PushMessagingReply:
		c.handleMessagingReply(push)
	default:
		// other push types carry nothing to display
	}
}

func (c *Classifier) handleMirror(push *model.Push) {
	title := push.Title
	if title == "" {
		title = push.ApplicationName
	}
	if title == "" {
		title = "Notification"
	}

	id := push.NotificationID
	if id == "" {
		id = "mirror-" + uuid.NewString()
	}

	c.present(&notify.Request{
		ID:       id,
		Title:    title,
		Body:     push.Body,
		Icon:     push.Icon,
		Priority: 2,
	})

	if push.SourceDeviceIden != "" {
		c.refreshThreads(push.SourceDeviceIden)
	}
}

func (c *Classifier) handleNoteOrLink(push *model.Push) {
	title := push.Title
	if title == "" {
		title = "New Push"
	}

	body := push.Body
	if body == "" && push.Type == model.PushLink {
		body = push.URL
		if body == "" {
			body = "Link received"
		}
	}

	c.present(&notify.Request{
		ID:    "push-" + push.Iden,
		Title: title,
		Body:  body,
	})
}

func (c *Classifier) handleSMSChanged(push *model.Push) {
	if len(push.Notifications) > 0 {
		latest := push.Notifications[0]
		for _, n := range push.Notifications[1:] {
			if n.Timestamp > latest.Timestamp {
				latest = n
			}
		}
		c.present(&notify.Request{
			ID:       "sms-" + latest.ThreadID,
			Title:    latest.Title,
			Body:     latest.Body,
			Priority: 2,
		})
	}

	c.mu.Lock()
	userKnown := c.userID != ""
	c.mu.Unlock()

	if push.SourceDeviceIden != "" && userKnown {
		c.refreshThreads(push.SourceDeviceIden)
	}
}

func (c *Classifier) handleMessagingReply(push *model.Push) {
	if push.Data == nil {
		return
	}

	if len(push.Data.Threads) > 0 {
		threads := append([]model.SMSThread(nil), push.Data.Threads...)
		sort.SliceStable(threads, func(i, j int) bool {
			return threads[i].Timestamp > threads[j].Timestamp
		})
		if c.sink != nil {
			c.sink.Threads(threads)
		}
	}

	if len(push.Data.Messages) > 0 {
		messages := append([]model.SMSMessage(nil), push.Data.Messages...)
		sort.SliceStable(messages, func(i, j int) bool {
			return messages[i].Timestamp < messages[j].Timestamp
		})
		if c.sink != nil {
			c.sink.Messages(messages)
		}

		last := messages[len(messages)-1]
		c.present(&notify.Request{
			ID:       "sms-msg-" + last.ID,
			Title:    "New SMS",
			Body:     last.Body,
			Priority: 2,
		})
	}
}

func (c *Classifier) present(req *notify.Request) {
	if c.presenter == nil {
		return
	}
	if _, err := c.presenter.Present(req); err != nil {
		logger.Warn("notification failed", zap.String("id", req.ID), zap.Error(err))
	}
}

// refreshThreads asks the phone for its thread list without waiting for
// the result; failures are swallowed and the user simply sees stale data
// until the next refresh.
func (c *Classifier) refreshThreads(deviceIden string) {
	if c.messaging == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ephemeralTimeout)
		defer cancel()
		if err := c.messaging.RequestThreadList(ctx, deviceIden); err != nil {
			logger.Debug("thread refresh failed",
				zap.String("device", deviceIden),
				zap.Error(err),
			)
		}
	}()
}
