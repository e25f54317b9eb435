package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/overlay"
	"github.com/sells-group/hexplorer/internal/resilience"
	"github.com/sells-group/hexplorer/internal/session"
)

type hubFixture struct {
	hub      *Hub
	data     *dataset.Manager
	sessions *session.Manager
}

func newHubFixture(t *testing.T, gw dataset.Gateway) hubFixture {
	t.Helper()
	reg := metric.Default()
	data := dataset.NewManager(gw,
		dataset.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
		dataset.WithTransform(reg.Derive),
	)
	_, err := data.Reload(context.Background())
	require.NoError(t, err)

	sessions := session.NewManager(reg, time.Hour)
	hub := NewHub(reg, data, sessions, DefaultOptions())
	t.Cleanup(hub.Close)
	return hubFixture{hub: hub, data: data, sessions: sessions}
}

func staticGateway() dataset.Gateway {
	return dataset.StaticGateway{Name: "fixture", Records: dataset.Fallback()}
}

func lastApplied(e *fakeEngine) Update {
	a := e.Applied()
	if len(a) == 0 {
		return Update{}
	}
	return a[len(a)-1]
}

func TestHub_AttachPaintsCurrentSelection(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyGas)
	require.NoError(t, err)

	e := newFakeEngine(false)
	detach, err := f.hub.Attach(context.Background(), st.ID, e)
	require.NoError(t, err)
	defer detach()
	assert.Equal(t, 1, f.hub.Clients(st.ID))
	assert.Empty(t, e.Applied())

	close(e.ready)
	assert.Eventually(t, func() bool { return lastApplied(e).Metric == dataset.KeyGas },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), lastApplied(e).DatasetVersion)
}

func TestHub_RepaintsOnSessionChange(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)

	e := newFakeEngine(true)
	detach, err := f.hub.Attach(context.Background(), st.ID, e)
	require.NoError(t, err)

	_, err = f.sessions.SetFilter(st.ID, 2, 4)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return lastApplied(e).Filter != nil }, time.Second, 5*time.Millisecond)

	_, err = f.sessions.SelectMetric(st.ID, dataset.KeyCombined)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		u := lastApplied(e)
		return u.Metric == dataset.KeyCombined && u.Filter == nil
	}, time.Second, 5*time.Millisecond)

	detach()
	assert.Equal(t, 0, f.hub.Clients(st.ID))
	n := len(e.Applied())
	_, err = f.sessions.ClearFilter(st.ID)
	require.NoError(t, err)
	assert.Len(t, e.Applied(), n)
}

func TestHub_AttachUnknownSession(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	_, err := f.hub.Attach(context.Background(), "nope", newFakeEngine(true))
	assert.True(t, errors.Is(err, session.ErrNotFound))
}

func TestHub_FallbackNotice(t *testing.T) {
	gw := dataset.StaticGateway{Name: "empty"}
	f := newHubFixture(t, gw)
	require.True(t, f.data.Current().IsFallback())

	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)
	e := newFakeEngine(true)
	detach, err := f.hub.Attach(context.Background(), st.ID, e)
	require.NoError(t, err)
	defer detach()

	sent := e.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, TypeNotice, sent[0].Type)
	assert.Equal(t, LevelWarning, sent[0].Level)
	assert.Contains(t, sent[0].Notice, "sample data")
}

func TestHub_HandleEvent(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)
	e := newFakeEngine(true)

	f.hub.HandleEvent(st.ID, e, ClientMessage{Type: TypeHover, ID: "855215d3fffffff"})
	f.hub.HandleEvent(st.ID, e, ClientMessage{Type: TypeClick, ID: "855215d3fffffff"})
	f.hub.HandleEvent(st.ID, e, ClientMessage{Type: TypeClick, ID: "ffffffffffffff"})
	f.hub.HandleEvent(st.ID, e, ClientMessage{Type: "drag", ID: "855215d3fffffff"})

	sent := e.Sent()
	require.Len(t, sent, 2)

	assert.Equal(t, TypePopup, sent[0].Type)
	require.NotNil(t, sent[0].Panel)
	assert.Equal(t, metric.PopupTitle, sent[0].Panel.Title)
	require.Len(t, sent[0].Panel.Lines, 1)
	assert.Equal(t, "2.6", sent[0].Panel.Lines[0].Value)

	assert.Equal(t, TypeInfo, sent[1].Type)
	assert.Equal(t, metric.InfoTitle, sent[1].Panel.Title)
	assert.Len(t, sent[1].Panel.Lines, 3)
}

func TestHub_ServeWS(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + st.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeReady}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypePaint, msg.Type)
	require.NotNil(t, msg.Paint)
	assert.Equal(t, dataset.KeyElectric, msg.Paint.Metric)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeClick, ID: "852c9043fffffff"}))
	msg = Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeInfo, msg.Type)
	require.NotNil(t, msg.Panel)
	assert.Equal(t, "852c9043fffffff", msg.Panel.ID)
}

func TestHub_DropsStaleSessionState(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)

	e := newFakeEngine(true)
	detach, err := f.hub.Attach(context.Background(), st.ID, e)
	require.NoError(t, err)
	defer detach()

	filtered, err := f.sessions.SetFilter(st.ID, 2, 3)
	require.NoError(t, err)
	current, err := f.sessions.SelectMetric(st.ID, dataset.KeyGas)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return lastApplied(e).SessionVersion == current.Version },
		time.Second, 5*time.Millisecond)

	f.hub.Publish(filtered)

	last := lastApplied(e)
	assert.Equal(t, dataset.KeyGas, last.Metric)
	assert.Nil(t, last.Filter)
	assert.Equal(t, current.Version, last.SessionVersion)
}

func TestHub_SlowClientEndsOnCurrentState(t *testing.T) {
	f := newHubFixture(t, staticGateway())

	for i := 0; i < 10; i++ {
		st, err := f.sessions.Create(dataset.KeyElectric)
		require.NoError(t, err)

		e := newFakeEngine(true)
		e.delay = func(u Update) time.Duration {
			if u.Filter != nil {
				return 20 * time.Millisecond
			}
			return 0
		}
		detach, err := f.hub.Attach(context.Background(), st.ID, e)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return lastApplied(e).SessionVersion == st.Version },
			time.Second, time.Millisecond)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = f.sessions.SetFilter(st.ID, 1, 2)
		}()
		time.Sleep(5 * time.Millisecond)
		_, err = f.sessions.SelectMetric(st.ID, dataset.KeyGas)
		require.NoError(t, err)
		<-done

		cur, err := f.sessions.Get(st.ID)
		require.NoError(t, err)
		last := lastApplied(e)
		assert.Equal(t, cur.Version, last.SessionVersion, "iteration %d", i)
		assert.Equal(t, cur.Metric, last.Metric, "iteration %d", i)
		assert.Equal(t, cur.Filter == nil, last.Filter == nil, "iteration %d", i)
		detach()
	}
}

func TestAllowOrigins(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	check := AllowOrigins([]string{"https://maps.example.com/"})
	assert.True(t, check(req("https://maps.example.com")))
	assert.True(t, check(req("HTTPS://MAPS.EXAMPLE.COM")))
	assert.True(t, check(req("")), "non-browser clients send no origin")
	assert.False(t, check(req("https://evil.example.net")))

	assert.True(t, AllowOrigins([]string{"*"})(req("https://evil.example.net")))
	assert.True(t, AllowOrigins(nil)(req("https://evil.example.net")))
}

func TestHub_ServeWS_RejectsForeignOrigin(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	f.hub.SetCheckOrigin(AllowOrigins([]string{"https://maps.example.com"}))
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + st.ID

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.net"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Clients(st.ID))

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://maps.example.com"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHub_OverlayClick(t *testing.T) {
	f := newHubFixture(t, staticGateway())
	st, err := f.sessions.Create(dataset.KeyElectric)
	require.NoError(t, err)
	e := newFakeEngine(true)

	click := ClientMessage{
		Type:    TypeOverlayClick,
		Overlay: "gas-infrastructure",
		Properties: map[string]any{
			"OBJECTID":      float64(12),
			"pipeline_name": "East-West",
			"status":        "",
		},
	}
	f.hub.HandleEvent(st.ID, e, click)
	assert.Empty(t, e.Sent(), "no overlays configured")

	svc, err := overlay.NewService([]overlay.Overlay{
		{Name: "gas-infrastructure", Kind: overlay.KindGeoJSON, URL: "https://gis.example.com/wfs", Opacity: 1, MaxZoom: 22},
	}, nil, nil)
	require.NoError(t, err)
	f.hub.SetOverlays(svc)

	f.hub.HandleEvent(st.ID, e, click)
	f.hub.HandleEvent(st.ID, e, ClientMessage{Type: TypeOverlayClick, Overlay: "roads"})

	sent := e.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypePopup, sent[0].Type)
	require.NotNil(t, sent[0].Panel)
	assert.Equal(t, overlay.DefaultTitle, sent[0].Panel.Title)
	require.Len(t, sent[0].Panel.Lines, 1)
	assert.Equal(t, "Pipeline Name", sent[0].Panel.Lines[0].Name)
	assert.Equal(t, "East-West", sent[0].Panel.Lines[0].Value)
}
