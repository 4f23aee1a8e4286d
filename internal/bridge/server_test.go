package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// replyFunc decides how the fake server answers one request.  An empty
// reply means stay silent.
type replyFunc func(req gjson.Result) string

// fakeServer is an in-process bridge server.  It greets every client,
// records every request frame and answers through respond.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	URL      string
	connects atomic.Int32

	upgradeDelay time.Duration

	mu       sync.Mutex
	respond  replyFunc
	requests []gjson.Result
	conns    []*websocket.Conn
	wmu      sync.Mutex
	arrived  chan gjson.Result
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, respond: defaultReply, arrived: make(chan gjson.Result, 256)}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	fs.URL = "ws" + strings.TrimPrefix(fs.srv.URL, "http")
	t.Cleanup(fs.close)
	return fs
}

// defaultReply pairs with session "abc" and acknowledges everything else.
func defaultReply(req gjson.Result) string {
	id := req.Get("id").String()
	if req.Get("cmd").String() == CmdPair {
		return `{"id":"` + id + `","ok":true,"result":{"sessionId":"abc"}}`
	}
	return `{"id":"` + id + `","ok":true}`
}

func (fs *fakeServer) setReply(fn replyFunc) {
	fs.mu.Lock()
	fs.respond = fn
	fs.mu.Unlock()
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if fs.upgradeDelay > 0 {
		time.Sleep(fs.upgradeDelay)
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.connects.Add(1)
	fs.mu.Lock()
	fs.conns = append(fs.conns, conn)
	fs.mu.Unlock()
	defer conn.Close()

	fs.write(conn, `{"hello":"twbridge","pairing":true}`)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req := gjson.ParseBytes(data)
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		respond := fs.respond
		fs.mu.Unlock()
		select {
		case fs.arrived <- req:
		default:
		}

		if out := respond(req); out != "" {
			fs.write(conn, out)
		}
	}
}

func (fs *fakeServer) write(conn *websocket.Conn, msg string) {
	fs.wmu.Lock()
	defer fs.wmu.Unlock()
	conn.WriteMessage(websocket.TextMessage, []byte(msg)) //nolint:errcheck
}

// broadcast writes msg to the most recent connection.
func (fs *fakeServer) broadcast(msg string) {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	fs.write(conn, msg)
}

// closeLatest closes the most recent connection with code and reason.
func (fs *fakeServer) closeLatest(code int, reason string) {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	fs.wmu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
	fs.wmu.Unlock()
	conn.Close()
}

// Requests returns a copy of every request seen so far.
func (fs *fakeServer) Requests() []gjson.Result {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]gjson.Result(nil), fs.requests...)
}

// commands lists the cmd field of every request seen so far.
func (fs *fakeServer) commands() []string {
	var out []string
	for _, r := range fs.Requests() {
		out = append(out, r.Get("cmd").String())
	}
	return out
}

// await blocks until the next request arrives.
func (fs *fakeServer) await() gjson.Result {
	fs.t.Helper()
	select {
	case r := <-fs.arrived:
		return r
	case <-time.After(3 * time.Second):
		fs.t.Fatal("timed out waiting for a request")
		return gjson.Result{}
	}
}

func (fs *fakeServer) close() {
	fs.mu.Lock()
	for _, c := range fs.conns {
		c.Close()
	}
	fs.mu.Unlock()
	fs.srv.Close()
}
