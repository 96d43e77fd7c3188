package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer dials the real stream endpoint.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(url string) (Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
