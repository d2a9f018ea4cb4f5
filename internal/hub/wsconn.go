package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WSSubscriber adapts a websocket connection to the Subscriber interface.
// The write deadline bounds how long a slow peer can hold up its own send;
// other subscribers are unaffected either way.
type WSSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

func (s *WSSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *WSSubscriber) Close() error {
	return s.conn.Close()
}
