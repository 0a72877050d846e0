package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

const maxJobsPerConn = 50

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// syncConn allows one writer at a time, events of different jobs may arrive concurrently
type syncConn struct {
	WsConn
	mu sync.Mutex
}

// WriteJSON writes under the connection lock
func (c *syncConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WsConn.WriteJSON(v)
}

type connJobs struct {
	jobs   map[string]struct{}
	writer *syncConn
}

// Subscriptions keeps websocket connections subscribed to job ids.
// A client subscribes by sending a job id, one connection may follow several jobs.
type Subscriptions struct {
	mu     sync.Mutex
	byJob  map[string]map[WsConn]struct{}
	byConn map[WsConn]*connJobs
	idle   time.Duration
}

// NewSubscriptions creates subscription keeper, idle connections are dropped after idle time
func NewSubscriptions(idle time.Duration) *Subscriptions {
	if idle <= 0 {
		idle = time.Minute * 30
	}
	return &Subscriptions{byJob: map[string]map[WsConn]struct{}{},
		byConn: map[WsConn]*connJobs{}, idle: idle}
}

// HandleConnection reads job ids until the connection closes or stays idle for too long
func (s *Subscriptions) HandleConnection(conn WsConn) error {
	defer s.drop(conn)
	defer conn.Close()
	readCh := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(readCh)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("ws read")
				return
			}
			id := strings.TrimSpace(string(message))
			if id == "" {
				continue
			}
			select {
			case readCh <- id:
			case <-done:
				return
			}
		}
	}()

	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			goapp.Log.Debug().Msg("ws idle")
			return nil
		case id, ok := <-readCh:
			if !ok {
				return nil
			}
			s.subscribe(conn, id)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.idle)
		}
	}
}

func (s *Subscriptions) subscribe(conn WsConn, id string) {
	goapp.Log.Info().Str("ID", goapp.Sanitize(id)).Msg("subscribe")
	s.mu.Lock()
	defer s.mu.Unlock()
	cj, ok := s.byConn[conn]
	if !ok {
		cj = &connJobs{jobs: map[string]struct{}{}, writer: &syncConn{WsConn: conn}}
		s.byConn[conn] = cj
	}
	if _, ok := cj.jobs[id]; !ok && len(cj.jobs) >= maxJobsPerConn {
		goapp.Log.Warn().Int("jobs", len(cj.jobs)).Msg("too many subscriptions")
		return
	}
	cj.jobs[id] = struct{}{}
	conns, ok := s.byJob[id]
	if !ok {
		conns = map[WsConn]struct{}{}
		s.byJob[id] = conns
	}
	conns[conn] = struct{}{}
}

func (s *Subscriptions) drop(conn WsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cj, ok := s.byConn[conn]
	if !ok {
		return
	}
	for id := range cj.jobs {
		delete(s.byJob[id], conn)
		if len(s.byJob[id]) == 0 {
			delete(s.byJob, id)
		}
	}
	delete(s.byConn, conn)
	goapp.Log.Debug().Int("active", len(s.byConn)).Msg("ws dropped")
}

// GetConnections returns connections subscribed to the job, writes to them are serialized per connection
func (s *Subscriptions) GetConnections(id string) ([]WsConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.byJob[id]
	if !ok {
		return nil, false
	}
	res := make([]WsConn, 0, len(conns))
	for c := range conns {
		res = append(res, s.byConn[c].writer)
	}
	return res, true
}
