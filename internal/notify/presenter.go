package notify

import (
	"fmt"
	"time"

	"pushbridge/internal/otp"
	"pushbridge/pkg/logger"

	"go.uber.org/zap"
)

// Notification is a platform-neutral notification descriptor.
type Notification struct {
	ID       string
	Title    string
	Body     string
	Icon     string // base64 PNG, optional
	Priority int
	Buttons  []string
}

// Platform issues notifications and reports click/closed events. The
// returned id is platform-assigned and may differ from the requested one.
type Platform interface {
	Create(n *Notification) (string, error)
	OnClicked(fn func(id string, button int))
	OnClosed(fn func(id string))
	Close() error
}

// Clipboard copies text for the "Copy OTP" action.
type Clipboard interface {
	Copy(text string) error
}

// Request is a classified event ready for display.
type Request struct {
	ID       string
	Title    string
	Body     string
	Icon     string
	Priority int
}

// Presenter turns classified events into platform notifications and wires
// the copy-OTP button back to the clipboard.
type Presenter struct {
	platform Platform
	clip     Clipboard
	records  *otp.Records
}

// NewPresenter creates a presenter and registers its click/closed handlers
// on the platform.
func NewPresenter(platform Platform, clip Clipboard, records *otp.Records) *Presenter {
	p := &Presenter{
		platform: platform,
		clip:     clip,
		records:  records,
	}
	platform.OnClicked(p.handleClicked)
	platform.OnClosed(p.handleClosed)
	return p
}

// Present issues a notification for the request. When the text carries a
// detected passcode the title becomes "OTP: <code>", a single Copy OTP
// button is attached, and the issued id is recorded so the button click can
// find the code later.
func (p *Presenter) Present(req *Request) (string, error) {
	id := req.ID
	if id == "" {
		id = fmt.Sprintf("sms-%d", time.Now().UnixMilli())
	}

	n := &Notification{
		ID:       id,
		Title:    req.Title,
		Body:     req.Body,
		Icon:     req.Icon,
		Priority: req.Priority,
	}

	code := otp.Extract(req.Title + "\n" + req.Body)
	if code != "" {
		n.Title = "OTP: " + code
		n.Buttons = []string{"Copy OTP"}
	}

	issued, err := p.platform.Create(n)
	if err != nil {
		return "", err
	}

	if code != "" {
		// Keyed by the platform-assigned id, which is what the click
		// handler will see.
		p.records.Put(issued, code)
	}

	logger.Debug("notification issued",
		zap.String("id", issued),
		zap.Bool("otp", code != ""),
	)
	return issued, nil
}

func (p *Presenter) handleClicked(id string, button int) {
	if button != 0 {
		return
	}
	code, ok := p.records.Get(id)
	if !ok {
		return
	}
	if err := p.clip.Copy(code); err != nil {
		logger.Warn("clipboard copy failed", zap.String("id", id), zap.Error(err))
		return
	}
	logger.Info("passcode copied to clipboard", zap.String("id", id))
}

func (p *Presenter) handleClosed(id string) {
	p.records.Delete(id)
}
