package core

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// bridgeServer pairs any code except "bad" and acknowledges every
// other command, failing those aimed at agent "ghost".
type bridgeServer struct {
	URL string

	mu   sync.Mutex
	cmds []string
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	bs := &bridgeServer{}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req := gjson.ParseBytes(data)
			cmd := req.Get("cmd").String()
			bs.mu.Lock()
			bs.cmds = append(bs.cmds, cmd)
			bs.mu.Unlock()

			id := req.Get("id").Raw
			var reply string
			switch {
			case cmd == "pair.start" && req.Get("code").String() == "bad":
				reply = `{"id":` + id + `,"ok":false,"error":"invalid code"}`
			case cmd == "pair.start":
				reply = `{"id":` + id + `,"ok":true,"result":{"sessionId":"s-1"}}`
			case cmd == "blocks.list":
				reply = `{"id":` + id + `,"ok":true,"result":{"blocks":[{"id":"stone","name":"Stone"}]}}`
			case req.Get("agentId").String() == "ghost":
				reply = `{"id":` + id + `,"ok":false,"error":"agent not found"}`
			default:
				reply = `{"id":` + id + `,"ok":true}`
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	bs.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return bs
}

func (bs *bridgeServer) commands() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return append([]string(nil), bs.cmds...)
}
