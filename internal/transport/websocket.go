package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultWebSocketAddr = ":8080"
	DefaultWebSocketPath = "/ws"

	writeWait = time.Second
)

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	Addr        string
	Path        string
	QueueSize   int           // queued frames before Send starts dropping
	MinInterval time.Duration // frames closer together than this are skipped
}

// WebSocket broadcasts frames as JSON text messages to every connected
// client. Send marshals the frame and queues it; a single goroutine writes
// to the clients, so a slow client delays the others but never the caller.
type WebSocket struct {
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sendMu   sync.Mutex
	lastSend time.Time
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// NewWebSocket creates the transport and starts its broadcast loop. Call
// Start to listen on cfg.Addr, or mount it as an http.Handler.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.Addr == "" {
		cfg.Addr = DefaultWebSocketAddr
	}
	if cfg.Path == "" {
		cfg.Path = DefaultWebSocketPath
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ws := &WebSocket{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // visualizers are served from anywhere
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	ws.wg.Add(1)
	go ws.handleBroadcasts()
	return ws
}

// Start serves the WebSocket endpoint on cfg.Addr in its own goroutine.
func (ws *WebSocket) Start() {
	mux := http.NewServeMux()
	mux.Handle(ws.cfg.Path, ws)
	ws.clientsMu.Lock()
	ws.server = &http.Server{Addr: ws.cfg.Addr, Handler: mux}
	server := ws.server
	ws.clientsMu.Unlock()

	go func() {
		logger.Infof("WebSocket server listening on %s%s", ws.cfg.Addr, ws.cfg.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("WebSocket server error: %v", err)
		}
	}()
}

// ServeHTTP upgrades the connection and registers the client until it
// disconnects.
func (ws *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ws.closed.Load() {
		http.Error(w, "closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	total := len(ws.clients)
	ws.clientsMu.Unlock()
	logger.Infof("WebSocket client connected from %s, total: %d", r.RemoteAddr, total)

	// Clients only listen; a read error means the connection is gone.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.removeClient(conn)
				return
			}
		}
	}()
}

func (ws *WebSocket) removeClient(conn *websocket.Conn) {
	ws.clientsMu.Lock()
	_, ok := ws.clients[conn]
	delete(ws.clients, conn)
	total := len(ws.clients)
	ws.clientsMu.Unlock()
	if ok {
		conn.Close()
		logger.Infof("WebSocket client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (ws *WebSocket) Clients() int {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	return len(ws.clients)
}

// Dropped counts frames skipped because the queue was full.
func (ws *WebSocket) Dropped() uint64 {
	return ws.dropped.Load()
}

// handleBroadcasts writes queued messages to all connected clients.
func (ws *WebSocket) handleBroadcasts() {
	defer ws.wg.Done()
	for {
		select {
		case msg := <-ws.broadcast:
			ws.writeAll(msg)
		case <-ws.done:
			return
		}
	}
}

func (ws *WebSocket) writeAll(msg []byte) {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	for client := range ws.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Warnf("WebSocket write error, dropping client: %v", err)
			client.Close()
			delete(ws.clients, client)
		}
	}
}

// Send queues the frame for broadcast. Frames arriving faster than
// MinInterval, or while the queue is full, are dropped.
func (ws *WebSocket) Send(f *Frame) error {
	if ws.closed.Load() {
		return ErrClosed
	}
	if ws.cfg.MinInterval > 0 {
		ws.sendMu.Lock()
		now := time.Now()
		if now.Sub(ws.lastSend) < ws.cfg.MinInterval {
			ws.sendMu.Unlock()
			return nil
		}
		ws.lastSend = now
		ws.sendMu.Unlock()
	}

	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case ws.broadcast <- msg:
	default:
		ws.dropped.Add(1)
	}
	return nil
}

// Close stops the broadcast loop, disconnects clients and shuts the server
// down. It is safe to call more than once.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		logger.Infof("closing WebSocket transport")
		ws.closed.Store(true)
		close(ws.done)
		ws.wg.Wait()

		ws.clientsMu.Lock()
		for client := range ws.clients {
			client.Close()
		}
		ws.clients = make(map[*websocket.Conn]bool)
		server := ws.server
		ws.clientsMu.Unlock()

		if server != nil {
			err = server.Close()
		}
	})
	return err
}

var _ Transport = (*WebSocket)(nil)
