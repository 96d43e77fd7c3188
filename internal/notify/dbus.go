package notify

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"pushbridge/pkg/logger"

	notifylib "github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// DBusPlatform renders notifications through the freedesktop notification
// service on the session bus. Action buttons and closed signals come back
// asynchronously over the same connection.
type DBusPlatform struct {
	conn     *dbus.Conn
	notifier notifylib.Notifier

	mu      sync.Mutex
	clicked func(id string, button int)
	closed  func(id string)
}

// NewDBusPlatform connects to the session bus and subscribes to action and
// closed signals.
func NewDBusPlatform() (*DBusPlatform, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session bus auth: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session bus hello: %w", err)
	}

	p := &DBusPlatform{conn: conn}
	notifier, err := notifylib.New(conn,
		notifylib.WithOnAction(p.onAction),
		notifylib.WithOnClosed(p.onClosed),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notification service: %w", err)
	}
	p.notifier = notifier
	return p, nil
}

// Create issues the notification and returns the server-assigned id.
func (p *DBusPlatform) Create(n *Notification) (string, error) {
	var actions []notifylib.Action
	for i, label := range n.Buttons {
		actions = append(actions, notifylib.Action{
			Key:   strconv.Itoa(i),
			Label: label,
		})
	}

	hints := map[string]dbus.Variant{}
	if n.Priority >= 2 {
		hints["urgency"] = dbus.MakeVariant(byte(2))
	}

	id, err := p.notifier.SendNotification(notifylib.Notification{
		AppName:       "pushbridge",
		AppIcon:       p.iconPath(n),
		Summary:       n.Title,
		Body:          n.Body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: notifylib.ExpireTimeoutSetByNotificationServer,
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(id), 10), nil
}

// iconPath materializes a base64 icon payload as a file the notification
// server can read. Failures fall back to no icon.
func (p *DBusPlatform) iconPath(n *Notification) string {
	if n.Icon == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(n.Icon)
	if err != nil {
		return ""
	}
	path := filepath.Join(os.TempDir(), "pushbridge-icon-"+n.ID+".png")
	if err := os.WriteFile(path, data, 0600); err != nil {
		logger.Debug("icon write failed", zap.Error(err))
		return ""
	}
	return path
}

// OnClicked registers the button-click handler.
func (p *DBusPlatform) OnClicked(fn func(id string, button int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = fn
}

// OnClosed registers the closed handler.
func (p *DBusPlatform) OnClosed(fn func(id string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = fn
}

func (p *DBusPlatform) onAction(s *notifylib.ActionInvokedSignal) {
	button, err := strconv.Atoi(s.ActionKey)
	if err != nil {
		return
	}
	p.mu.Lock()
	fn := p.clicked
	p.mu.Unlock()
	if fn != nil {
		fn(strconv.FormatUint(uint64(s.ID), 10), button)
	}
}

func (p *DBusPlatform) onClosed(s *notifylib.NotificationClosedSignal) {
	p.mu.Lock()
	fn := p.closed
	p.mu.Unlock()
	if fn != nil {
		fn(strconv.FormatUint(uint64(s.ID), 10))
	}
}

// Close tears down the bus connection.
func (p *DBusPlatform) Close() error {
	return p.conn.Close()
}
