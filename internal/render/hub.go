package render

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/overlay"
	"github.com/sells-group/hexplorer/internal/session"
)

// Client is one connected renderer that can also receive panels and
// notices.
type Client interface {
	Engine
	Send(Message) error
}

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Hub fans session and dataset changes out to the renderers attached to each
// session, and answers their click and hover events.
type Hub struct {
	reg      *metric.Registry
	data     *dataset.Manager
	sessions *session.Manager
	opts     Options
	overlays *overlay.Service
	log      *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*attached]struct{}
	unsubs  []func()
}

type attached struct {
	client  Client
	painter *Painter

	// mu orders paints; version is the newest session version painted.
	mu      sync.Mutex
	version uint64
}

// NewHub subscribes to sessions and data. Call Close to unsubscribe.
func NewHub(reg *metric.Registry, data *dataset.Manager, sessions *session.Manager, opts Options) *Hub {
	h := &Hub{
		reg:      reg,
		data:     data,
		sessions: sessions,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "render")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*attached]struct{}),
	}
	h.unsubs = append(h.unsubs,
		sessions.Subscribe(h.Publish),
		data.Subscribe(h.onDataset),
	)
	return h
}

// SetCheckOrigin replaces the WebSocket origin check. Call it before
// serving.
func (h *Hub) SetCheckOrigin(fn func(*http.Request) bool) { h.upgrader.CheckOrigin = fn }

// SetOverlays enables popups for clicked overlay features. Call it before
// serving.
func (h *Hub) SetOverlays(s *overlay.Service) { h.overlays = s }

// AllowOrigins is an origin check for the given CORS origins. An empty list
// or "*" allows every origin. Requests without an Origin header come from
// non-browser clients and are allowed.
func AllowOrigins(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)]
	}
}

// Close unsubscribes from sessions and data.
func (h *Hub) Close() {
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil
}

// Attach registers c for sessionID and paints the current selection; the
// paint is held until c is ready. The returned func detaches c.
func (h *Hub) Attach(ctx context.Context, sessionID string, c Client) (func(), error) {
	st, err := h.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	a := &attached{client: c, painter: NewPainter(ctx, c)}

	h.mu.Lock()
	set, ok := h.clients[sessionID]
	if !ok {
		set = make(map[*attached]struct{})
		h.clients[sessionID] = set
	}
	set[a] = struct{}{}
	h.mu.Unlock()

	h.paint(a, st)
	if ds := h.data.Current(); ds != nil && ds.IsFallback() {
		h.notifyFallback(a.client, ds)
	}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clients[sessionID], a)
		if len(h.clients[sessionID]) == 0 {
			delete(h.clients, sessionID)
		}
	}, nil
}

// Clients is the number of renderers attached to sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

// Publish repaints every renderer of st's session.
func (h *Hub) Publish(st session.State) {
	for _, a := range h.attachedTo(st.ID) {
		h.paint(a, st)
	}
}

// HandleEvent answers a click with the info panel and a hover with the
// popup of the session's metric. A click on an overlay feature gets that
// feature's popup. Unknown cells and overlays are ignored.
func (h *Hub) HandleEvent(sessionID string, c Client, msg ClientMessage) {
	st, err := h.sessions.Get(sessionID)
	if err != nil {
		h.log.Debug("event for unknown session", zap.String("session", sessionID))
		return
	}
	_ = h.sessions.Touch(sessionID)

	if msg.Type == TypeOverlayClick {
		h.overlayPopup(c, msg)
		return
	}

	ds := h.data.Current()
	if ds == nil {
		return
	}
	rec, ok := ds.Lookup(msg.ID)
	if !ok {
		h.log.Debug("event for unknown cell", zap.String("cell", msg.ID), zap.String("type", msg.Type))
		return
	}

	var out Message
	switch msg.Type {
	case TypeClick:
		p := h.reg.Describe(rec)
		out = Message{Type: TypeInfo, Panel: &p}
	case TypeHover:
		p, err := h.reg.Popup(rec, st.Metric)
		if err != nil {
			h.log.Warn("popup failed", zap.String("metric", st.Metric), zap.Error(err))
			return
		}
		out = Message{Type: TypePopup, Panel: &p}
	default:
		h.log.Debug("ignoring client message", zap.String("type", msg.Type))
		return
	}
	if err := c.Send(out); err != nil {
		h.log.Debug("send failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (h *Hub) overlayPopup(c Client, msg ClientMessage) {
	if h.overlays == nil {
		return
	}
	o, err := h.overlays.Lookup(msg.Overlay)
	if err != nil {
		h.log.Debug("click on unknown overlay", zap.String("overlay", msg.Overlay))
		return
	}
	p := overlay.Describe(o, msg.Properties)
	if err := c.Send(Message{Type: TypePopup, Panel: &p}); err != nil {
		h.log.Debug("send failed", zap.String("overlay", o.Name), zap.Error(err))
	}
}

// ServeWS upgrades r and runs the renderer bridge for sessionID until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	eng := NewWSEngine(conn)
	defer eng.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	detach, err := h.Attach(ctx, sessionID, eng)
	if err != nil {
		_ = eng.Notify(LevelWarning, "session not found")
		return
	}
	defer detach()

	h.log.Debug("renderer attached", zap.String("session", sessionID))
	if err := eng.ReadLoop(ctx, func(m ClientMessage) { h.HandleEvent(sessionID, eng, m) }); err != nil {
		h.log.Debug("renderer disconnected", zap.String("session", sessionID), zap.Error(err))
	}
}

func (h *Hub) onDataset(ds *dataset.Dataset) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		st, err := h.sessions.Get(id)
		if err != nil {
			continue
		}
		for _, a := range h.attachedTo(id) {
			h.paint(a, st)
			if ds.IsFallback() {
				h.notifyFallback(a.client, ds)
			}
		}
	}
}

// paint applies st unless a newer version of the session was already
// painted. Session subscribers run outside the session lock, so states can
// arrive out of order. Dataset repaints reuse the current version.
func (h *Hub) paint(a *attached, st session.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st.Version < a.version {
		h.log.Debug("dropping stale session state",
			zap.String("session", st.ID),
			zap.Uint64("version", st.Version),
			zap.Uint64("painted", a.version),
		)
		return
	}
	a.version = st.Version

	desc, err := h.reg.Lookup(st.Metric)
	if err != nil {
		h.log.Warn("session has unknown metric", zap.String("session", st.ID), zap.String("metric", st.Metric))
		return
	}
	u := Compose(desc, st.Filter, h.opts)
	u.SessionVersion = st.Version
	if ds := h.data.Current(); ds != nil {
		u.DatasetVersion = ds.Version()
	}
	if err := a.painter.Paint(u); err != nil {
		logApplyError(u.Metric, err)
		return
	}
	if u.Fallback {
		_ = a.client.Send(Message{
			Type:   TypeNotice,
			Level:  LevelWarning,
			Notice: "Color scale for " + desc.Name + " is incomplete; showing a flat color.",
		})
	}
}

func (h *Hub) notifyFallback(c Client, ds *dataset.Dataset) {
	text := "Could not load the dataset; showing sample data."
	if err := ds.LoadErr(); err != nil {
		text = "Could not load the dataset (" + err.Error() + "); showing sample data."
	}
	_ = c.Send(Message{Type: TypeNotice, Level: LevelWarning, Notice: text})
}

func (h *Hub) attachedTo(sessionID string) []*attached {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*attached, 0, len(h.clients[sessionID]))
	for a := range h.clients[sessionID] {
		out = append(out, a)
	}
	return out
}
