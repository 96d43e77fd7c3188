package model

// Frame is one decoded message from the stream socket. The variant is
// keyed on Type; only push frames carry a payload.
type Frame struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Push    *Push  `json:"push,omitempty"`
}

// Frame types delivered over the stream.
const (
	FrameTickle = "tickle"
	FramePush   = "push"
	FrameNop    = "nop"
)

// Tickle subtypes.
const (
	TickleSubtypePush   = "push"
	TickleSubtypeDevice = "device"
)

// Push types nested inside push frames.
const (
	PushNote           = "note"
	PushLink           = "link"
	PushMirror         = "mirror"
	PushSMSChanged     = "sms_changed"
	PushMessagingReply = "messaging_extension_reply"
)

// Push is the payload of a push frame. Fields are a union over the push
// types; each variant reads only its own.
type Push struct {
	Iden             string `json:"iden,omitempty"`
	Type             string `json:"type"`
	Title            string `json:"title,omitempty"`
	Body             string `json:"body,omitempty"`
	URL              string `json:"url,omitempty"`
	ApplicationName  string `json:"application_name,omitempty"`
	PackageName      string `json:"package_name,omitempty"`
	NotificationID   string `json:"notification_id,omitempty"`
	Icon             string `json:"icon,omitempty"` // base64 PNG
	SourceDeviceIden string `json:"source_device_iden,omitempty"`
	SourceUserIden   string `json:"source_user_iden,omitempty"`

	// Inline summaries carried by sms_changed pushes.
	Notifications []SMSNotification `json:"notifications,omitempty"`

	// Reply payload carried by messaging_extension_reply pushes.
	Data *ReplyData `json:"data,omitempty"`
}

// SMSNotification is an inline new-message summary on an sms_changed push.
type SMSNotification struct {
	ThreadID  string `json:"thread_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// ReplyData holds exactly one of a thread listing or a message listing.
type ReplyData struct {
	Threads  []SMSThread  `json:"threads,omitempty"`
	Messages []SMSMessage `json:"messages,omitempty"`
}

// SMSThread is one conversation as reported by the phone. The first
// recipient is authoritative for display.
type SMSThread struct {
	ID            string      `json:"id"`
	Recipients    []Recipient `json:"recipients"`
	LatestMessage string      `json:"latest_message"`
	Timestamp     int64       `json:"timestamp"`
}

// Recipient identifies one party of an SMS thread.
type Recipient struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Number  string `json:"number"`
}

// Message directions as reported by the phone.
const (
	DirectionReceived = "1"
	DirectionSent     = "2"
)

// SMSMessage is one message inside a thread.
type SMSMessage struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status,omitempty"`
}

// User is the remote account record.
type User struct {
	Iden     string `json:"iden"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// Device is one registered device on the account.
type Device struct {
	Iden         string  `json:"iden"`
	Active       bool    `json:"active"`
	Created      float64 `json:"created"`
	Modified     float64 `json:"modified"`
	Nickname     string  `json:"nickname"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	Pushable     bool    `json:"pushable"`
	HasSMS       bool    `json:"has_sms"`
	Kind         string  `json:"kind"`
}

// PushRequest is an outbound note or link push.
type PushRequest struct {
	Type       string `json:"type"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
	URL        string `json:"url,omitempty"`
	DeviceIden string `json:"device_iden,omitempty"`
}
