package render

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/metric"
)

// Message types exchanged with the browser client.
const (
	TypeReady  = "ready"
	TypeClick  = "click"
	TypeHover  = "hover"
	TypePaint  = "paint"
	TypePopup  = "popup"
	TypeInfo   = "info"
	TypeNotice = "notice"

	// TypeOverlayClick reports a click on an overlay feature.
	TypeOverlayClick = "overlay_click"
)

// ClientMessage is a message from the browser client.
type ClientMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Overlay    string         `json:"overlay,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Message is a message to the browser client.
type Message struct {
	Type   string        `json:"type"`
	Paint  *Update       `json:"paint,omitempty"`
	Panel  *metric.Panel `json:"panel,omitempty"`
	Notice string        `json:"notice,omitempty"`
	Level  string        `json:"level,omitempty"`
}

const writeWait = 10 * time.Second

// WSEngine is a browser renderer reached over a WebSocket. It becomes ready
// when the client reports its style has loaded.
type WSEngine struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
}

// NewWSEngine wraps an upgraded connection.
func NewWSEngine(conn *websocket.Conn) *WSEngine {
	return &WSEngine{conn: conn, ready: make(chan struct{})}
}

// Ready implements Engine.
func (e *WSEngine) Ready() <-chan struct{} { return e.ready }

// Apply implements Engine.
func (e *WSEngine) Apply(u Update) error {
	return e.Send(Message{Type: TypePaint, Paint: &u})
}

// Send writes one message. Writes are serialized.
func (e *WSEngine) Send(m Message) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return eris.Wrap(e.conn.WriteJSON(m), "render: write message")
}

// Notify sends a transient notification.
func (e *WSEngine) Notify(level, text string) error {
	return e.Send(Message{Type: TypeNotice, Level: level, Notice: text})
}

// Close sends a close frame and closes the connection.
func (e *WSEngine) Close() error {
	e.writeMu.Lock()
	_ = e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	e.writeMu.Unlock()
	return e.conn.Close()
}

// ReadLoop reads client messages until the connection closes or ctx ends.
// "ready" marks the engine ready; every other message goes to handle.
// Malformed messages are logged and skipped.
func (e *WSEngine) ReadLoop(ctx context.Context, handle func(ClientMessage)) error {
	go func() {
		<-ctx.Done()
		_ = e.conn.SetReadDeadline(time.Now())
	}()

	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return eris.Wrap(err, "render: read message")
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			zap.L().Warn("render: malformed client message", zap.Error(err))
			continue
		}
		if msg.Type == TypeReady {
			e.readyOnce.Do(func() { close(e.ready) })
			continue
		}
		if handle != nil {
			handle(msg)
		}
	}
}

func logApplyError(metricKey string, err error) {
	zap.L().Warn("render: apply failed", zap.String("metric", metricKey), zap.Error(err))
}
