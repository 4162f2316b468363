package sink

import (
	"time"

	"github.com/gorilla/websocket"
)

// Websocket forwards each write as one text message on a websocket
// connection.
type Websocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebsocket(conn *websocket.Conn) *Websocket {
	return &Websocket{conn: conn}
}

// DialWebsocket connects to url and returns a sink writing to it.
func DialWebsocket(url string, handshakeTimeout time.Duration) (*Websocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebsocket(conn), nil
}

func (ws *Websocket) SetWriteTimeout(d time.Duration) *Websocket {
	ws.writeTimeout = d
	return ws
}

func (ws *Websocket) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if ws.writeTimeout > 0 {
		if err := ws.conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout)); err != nil {
			return 0, err
		}
	}
	if err := ws.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close sends a normal closure frame and closes the connection.
func (ws *Websocket) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return ws.conn.Close()
}
