package util

import (
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

// IsHarmlessClose returns true for errors that are expected when a
// websocket goes away: a normal or going-away close frame, EOF, or a
// read on a connection we closed ourselves.
func IsHarmlessClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// CloseReason extracts the close code and text a peer sent, if err is a
// websocket close error.
func CloseReason(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}
