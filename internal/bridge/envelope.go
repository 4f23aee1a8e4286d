package bridge

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Command names understood by the bridge server.
const (
	CmdPair          = "pair.start"
	CmdRun           = "command.run"
	CmdTeleport      = "agent.teleportToPlayer"
	CmdDespawn       = "agent.despawn"
	CmdMove          = "agent.move"
	CmdRotate        = "agent.rotate"
	CmdSlotActivate  = "agent.slot.activate"
	CmdSlotSet       = "agent.slot.set"
	CmdPlace         = "agent.place"
	CmdListBlocks    = "blocks.list"
	defaultErrReason = "error"
)

// Request is the outbound envelope.  SessionID is encoded as null when
// no session exists; the server relies on the key being present.
type Request struct {
	ID        string  `json:"id"`
	SessionID *string `json:"sessionId"`
	Cmd       string  `json:"cmd"`
	Code      *string `json:"code,omitempty"`
	Player    string  `json:"player,omitempty"`
	Command   string  `json:"command,omitempty"`
	AgentID   string  `json:"agentId,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Blocks    int     `json:"blocks,omitempty"`
	Block     string  `json:"block,omitempty"`
	Amount    int     `json:"amount,omitempty"`
	Slot      int     `json:"slot,omitempty"`
}

// Result is the outcome the server reported for one request.  When OK
// is false Reason holds the server's error text and Payload is empty.
type Result struct {
	OK      bool
	Payload json.RawMessage
	Reason  string
}

// Get looks up a gjson path in the payload.
func (r Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Payload, path)
}

// String returns the raw payload, or the reason for a failure.
func (r Result) String() string {
	if !r.OK {
		return r.Reason
	}
	return string(r.Payload)
}

// decodeResponse extracts the correlation id and outcome from an
// inbound frame.  It reports false for anything that is not a JSON
// object with a non-empty string id, which includes the server's
// greeting.
func decodeResponse(data []byte) (string, Result, bool) {
	if !gjson.ValidBytes(data) {
		return "", Result{}, false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", Result{}, false
	}
	id := root.Get("id")
	if id.Type != gjson.String || id.Str == "" {
		return "", Result{}, false
	}

	if truthy(root.Get("ok")) {
		payload := json.RawMessage("{}")
		if res := root.Get("result"); truthy(res) {
			payload = json.RawMessage(res.Raw)
		}
		return id.Str, Result{OK: true, Payload: payload}, true
	}
	return id.Str, Result{Reason: errorReason(root.Get("error"))}, true
}

// errorReason renders the server's error value.  Objects contribute
// their "message" when present; anything falsy becomes "error".
func errorReason(v gjson.Result) string {
	if !truthy(v) {
		return defaultErrReason
	}
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsObject():
		if msg := v.Get("message"); msg.Type == gjson.String && msg.Str != "" {
			return msg.Str
		}
	}
	return v.Raw
}

// truthy mirrors how the server's clients have always read "ok" and
// "result": missing, null, false, 0 and "" are all false.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	default:
		return v.Exists()
	}
}
