package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts signaling websockets and hands each one to the test.
type fakeServer struct {
	t     *testing.T
	srv   *httptest.Server
	conns chan *peer
}

type peer struct {
	t       *testing.T
	ws      *websocket.Conn
	session string
	in      chan map[string]any
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, conns: make(chan *peer, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := &peer{t: t, ws: ws, session: r.URL.Query().Get("session"), in: make(chan map[string]any, 64)}
		go p.read()
		fs.conns <- p
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) URL() string { return "ws" + strings.TrimPrefix(fs.srv.URL, "http") }

func (fs *fakeServer) accept() *peer {
	fs.t.Helper()
	select {
	case p := <-fs.conns:
		return p
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no connection")
		return nil
	}
}

func (p *peer) read() {
	defer close(p.in)
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			return
		}
		var m map[string]any
		if json.Unmarshal(data, &m) == nil && m["type"] != msgPing {
			p.in <- m
		}
	}
}

// expect returns the next client message and checks its type.
func (p *peer) expect(typ string) map[string]any {
	p.t.Helper()
	select {
	case m, ok := <-p.in:
		require.True(p.t, ok, "connection closed waiting for %s", typ)
		require.Equal(p.t, typ, m["type"])
		return m
	case <-time.After(2 * time.Second):
		p.t.Fatalf("no %s message", typ)
		return nil
	}
}

func (p *peer) send(v any) {
	p.t.Helper()
	require.NoError(p.t, p.ws.WriteJSON(v))
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}
