package util

import "sync"

// WriteBufferPool recycles websocket write buffers between connections.
// The websocket package stores its own buffer type in the pool; New
// must stay nil.
var WriteBufferPool = &sync.Pool{}
