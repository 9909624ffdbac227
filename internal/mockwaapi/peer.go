package mockwaapi

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

const sendBuffer = 64

// peer is one connected client. All writes go through send and the write pump.
type peer struct {
	conn    *websocket.Conn
	log     zerolog.Logger
	session wamp.ID

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newPeer(conn *websocket.Conn, log zerolog.Logger) *peer {
	p := &peer{
		conn: conn,
		log:  log,
		send: make(chan []byte, sendBuffer),
	}
	go p.writePump()
	return p
}

func (p *peer) writePump() {
	defer p.conn.Close()
	for msg := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// enqueue reports false when the peer is gone or cannot keep up.
func (p *peer) enqueue(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) write(m wamp.Message) bool {
	data, err := wamp.Encode(m)
	if err != nil {
		p.log.Error().Err(err).Msg("encode error")
		return false
	}
	return p.enqueue(data)
}

// close stops the write pump once queued messages are flushed.
func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// kill drops the connection without a close handshake. The socket goes
// first so the write pump cannot send a close frame.
func (p *peer) kill() {
	p.conn.Close()
	p.close()
}
