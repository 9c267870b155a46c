package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Upgrader accepts any origin; the listener is bound to an operator-chosen
// address, localhost by default.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type LogHub struct {
	mu      sync.RWMutex
	clients map[*logClient]struct{}
	in      chan []byte
	reg     chan *logClient
	unreg   chan *logClient
	stop    chan struct{}
	once    sync.Once
	writer  *broadcastWriter
}
