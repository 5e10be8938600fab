// Package testserver runs an in-process stand-in for the processing server.
// It speaks the same websocket protocol and lets tests script replies, push
// unsolicited frames and drop connections.
package testserver

import (
	"fmt"
	"net"
	"sync"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const writeWait = 5 * time.Second

// Responder answers one inbound frame with zero or more outbound frames.
type Responder func(msg []byte) [][]byte

type Server struct {
	URL string

	app     *fiber.App
	respond Responder

	mu       sync.Mutex
	clients  map[*client]struct{}
	received [][]byte
	accepted int
}

// client mirrors the read/write pump split: only writePump touches the
// connection for writing.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	closing chan []byte
	done    chan struct{}
}

// Start listens on a random loopback port. Every new connection is greeted
// with a connection ack, like the real server does.
func Start(respond Responder) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		URL:     "ws://" + ln.Addr().String() + "/ws",
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		respond: respond,
		clients: make(map[*client]struct{}),
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.serve))

	go func() {
		_ = s.app.Listener(ln)
	}()
	return s, nil
}

func (s *Server) serve(c *websocket.Conn) {
	cl := &client{
		conn:    c,
		send:    make(chan []byte, 64),
		closing: make(chan []byte, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, cl)
		s.mu.Unlock()
		close(cl.done)
		c.Close()
	}()

	go cl.writePump()
	cl.send <- Frame(map[string]interface{}{"status": "connected", "message": "WebSocket connection established"})

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		if s.respond == nil {
			continue
		}
		for _, out := range s.respond(msg) {
			select {
			case cl.send <- out:
			case <-cl.done:
				return
			}
		}
	}
}

func (cl *client) writePump() {
	for {
		select {
		case <-cl.done:
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case payload := <-cl.closing:
			cl.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait))
			cl.conn.Close()
			return
		}
	}
}

// Broadcast pushes a frame to every connected client.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cl := range s.clients {
		select {
		case cl.send <- frame:
		default:
		}
	}
}

// Disconnect closes every client with a close frame carrying code and text.
func (s *Server) Disconnect(code int, text string) {
	payload := fws.FormatCloseMessage(code, text)
	s.mu.Lock()
	defer s.mu.Unlock()
	for cl := range s.clients {
		select {
		case cl.closing <- payload:
		default:
		}
	}
}

// Received returns every inbound frame across all connections, in order.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// Accepted counts connections accepted since Start.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Connected counts connections that are still open.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Close() error {
	s.Disconnect(fws.CloseGoingAway, "server shutting down")
	return s.app.ShutdownWithTimeout(2 * time.Second)
}
