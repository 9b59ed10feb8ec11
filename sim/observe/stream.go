package observe

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

const writeWait = 5 * time.Second

// Stream broadcasts metric records as JSON text messages to websocket
// clients. Each client has its own buffered channel drained by a writer
// goroutine, so a slow client only loses its own messages and never blocks
// the simulation loop.
type Stream struct {
	runID    string
	buffer   int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  uint64
	closed  bool

	dropped atomic.Uint64
}

// NewStream creates a broadcaster whose clients buffer up to buffer messages.
func NewStream(runID string, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Stream{
		runID:  runID,
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uint64]chan []byte),
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many messages were dropped for slow clients.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func (s *Stream) OnMetricEvent(m sim.MetricEvent) {
	b, err := json.Marshal(NewRecord(s.runID, m))
	if err != nil {
		logrus.Errorf("Encoding metric record for stream: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, out := range s.clients {
		select {
		case out <- b:
		default:
			s.dropped.Add(1)
			logrus.Debugf("Stream client %d is slow, dropping %s", id, m.Kind)
		}
	}
}

// OnSimulationEnd closes every client after its buffered messages are sent.
func (s *Stream) OnSimulationEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, out := range s.clients {
		close(out)
		delete(s.clients, id)
	}
}

func (s *Stream) join() (uint64, chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, false
	}
	s.nextID++
	out := make(chan []byte, s.buffer)
	s.clients[s.nextID] = out
	return s.nextID, out, true
}

func (s *Stream) leave(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, ok := s.clients[id]; ok {
		close(out)
		delete(s.clients, id)
	}
}

// Handler upgrades the request to a websocket and streams records until the
// simulation ends or the client disconnects.
func (s *Stream) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out, ok := s.join()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation ended"), time.Now().Add(time.Second))
			return
		}
		defer s.leave(id)
		logrus.Debugf("Stream client %d connected from %s", id, r.RemoteAddr)

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for b := range out {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation ended"), time.Now().Add(time.Second))
		}()

		// Reader goroutine: clients send nothing, reading only detects disconnects.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-writeDone:
		case <-readDone:
		}
		logrus.Debugf("Stream client %d disconnected", id)
	}
}
