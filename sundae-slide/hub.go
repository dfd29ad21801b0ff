package sundaeslide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	sundaeregistry "github.com/SundaeSwap-finance/sundae-slides/sundae-registry"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/connectiondao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FeedbackStore holds the durable per-slide reaction counters.
type FeedbackStore interface {
	EnsureTable(ctx context.Context) error
	RecordFeedback(ctx context.Context, slideKey string, slideNumber int64, slideTitle string, category feedbackdao.Category) error
	ListFeedback(ctx context.Context, slideKey string) ([]feedbackdao.Row, error)
}

// Registrar records presentations as audiences join them.
type Registrar interface {
	AddEntry(ctx context.Context, title, key string) (sundaeregistry.AddResult, error)
}

// Publisher forwards recorded reactions to downstream consumers.
type Publisher interface {
	Send(ctx context.Context, topic string, payload interface{}) error
}

var errSlideStopped = errors.New("slide stopped")

const (
	defaultConnTTL      = 2 * time.Hour
	defaultRetryBackoff = 50 * time.Millisecond
	deliverAttempts     = 3
)

// Hub owns every live websocket and at most one Slide per key. Slides are
// created on first reference and may be hibernated at any time; a hibernated
// Slide is rebuilt from the sockets the Hub still holds for its key.
type Hub struct {
	Feedback     FeedbackStore
	Connections  ConnectionStore // optional
	Registry     Registrar       // optional
	Events       Publisher       // optional
	Metrics      sundaecli.Metrics
	Logger       zerolog.Logger
	Upgrader     websocket.Upgrader
	IdleTimeout  time.Duration // zero disables idle hibernation
	SendBuffer   int
	ConnTTL      time.Duration
	RetryBackoff time.Duration

	mu      sync.Mutex
	slides  map[string]*Slide
	sockets map[string][]*Conn
}

// Slide returns the coordinator for key, constructing it if needed.
func (h *Hub) Slide(ctx context.Context, key string) (*Slide, error) {
	if key == "" {
		return nil, fmt.Errorf("slide key is required")
	}

	h.mu.Lock()
	s, ok := h.slides[key]
	h.mu.Unlock()
	if ok {
		return s, nil
	}

	// schema setup is idempotent and may be slow, so it runs unlocked
	if err := h.Feedback.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare feedback store for slide %v: %w", key, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.slides[key]; ok {
		return s, nil
	}

	conns := make([]*Conn, len(h.sockets[key]))
	copy(conns, h.sockets[key])

	s = newSlide(h, key, conns)
	if h.slides == nil {
		h.slides = map[string]*Slide{}
	}
	h.slides[key] = s
	go s.run()

	if len(conns) > 0 {
		h.event(sundaecli.SlideRehydratedMetric, map[sundaecli.DimensionName]string{
			sundaecli.SlideKeyDimension: key,
		})
	}
	return s, nil
}

// AcceptWebSocket upgrades the request and takes ownership of the socket. The
// caller is responsible for starting the read loop with listen.
func (h *Hub) AcceptWebSocket(w http.ResponseWriter, r *http.Request, key string) (*Conn, error) {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection for slide %v: %w", key, err)
	}

	conn := newConn(uuid.NewString(), key, ws, h.SendBuffer, h.Connections, h.Logger.With().Str("slide", key).Logger())
	go conn.writePump()

	h.attach(context.Background(), conn)
	return conn, nil
}

// WebSockets returns the sockets currently attached to key in the order they
// were accepted.
func (h *Hub) WebSockets(key string) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := make([]*Conn, len(h.sockets[key]))
	copy(conns, h.sockets[key])
	return conns
}

// Hibernate evicts the coordinator for key from memory. Its sockets stay
// open and are picked up again by the next call to Slide.
func (h *Hub) Hibernate(ctx context.Context, key string) error {
	h.mu.Lock()
	s := h.slides[key]
	h.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.hibernate(ctx)
}

// Close hibernates every coordinator and closes every socket.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	var (
		slides []*Slide
		conns  []*Conn
	)
	for _, s := range h.slides {
		slides = append(slides, s)
	}
	for _, cs := range h.sockets {
		conns = append(conns, cs...)
	}
	h.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range slides {
		s := s
		g.Go(func() error {
			return s.hibernate(ctx)
		})
	}
	err := g.Wait()

	for _, conn := range conns {
		conn.Close()
	}
	return err
}

func (h *Hub) attach(ctx context.Context, conn *Conn) {
	h.mu.Lock()
	if h.sockets == nil {
		h.sockets = map[string][]*Conn{}
	}
	h.sockets[conn.Key] = append(h.sockets[conn.Key], conn)
	h.mu.Unlock()

	if h.Connections != nil {
		connectedAt := conn.DeserializeAttachment().ConnectedAt
		conn.refreshDue(connectedAt, h.connTTL())
		if err := h.Connections.Put(ctx, h.record(conn, connectedAt)); err != nil {
			conn.logger.Error().Err(err).Msg("failed to store connection")
		}
	}

	conn.logger.Info().Msg("connection established")
	h.event(sundaecli.ConnectionAcceptedMetric, map[sundaecli.DimensionName]string{
		sundaecli.SlideKeyDimension: conn.Key,
	})
}

// record builds the stored form of conn with an expiry one ttl after now.
func (h *Hub) record(conn *Conn, now time.Time) connectiondao.Connection {
	session := conn.DeserializeAttachment()
	return connectiondao.Connection{
		ConnectionID: conn.ID,
		SlideKey:     conn.Key,
		Identity:     session.Identity,
		ConnectedAt:  session.ConnectedAt.Unix(),
		TTL:          now.Add(h.connTTL()).Unix(),
	}
}

// touch pushes back the expiry of an active connection's record once half
// of its ttl has passed, restoring the record if the sweep already took it.
func (h *Hub) touch(ctx context.Context, conn *Conn) {
	if h.Connections == nil {
		return
	}

	now := time.Now()
	if !conn.refreshDue(now, h.connTTL()) {
		return
	}

	err := h.Connections.Touch(ctx, conn.ID, now.Add(h.connTTL()).Unix())
	if errors.Is(err, connectiondao.ErrNotFound) {
		err = h.Connections.Put(ctx, h.record(conn, now))
	}
	if err != nil {
		conn.logger.Error().Err(err).Msg("failed to refresh connection")
	}
}

// register adds conn to the live coordinator for its key. If s stopped before
// the add ran, the add is retried against its replacement.
func (h *Hub) register(ctx context.Context, s *Slide, conn *Conn) error {
	for attempt := 0; attempt < deliverAttempts; attempt++ {
		target := s
		err := target.do(ctx, func() error {
			target.add(conn)
			return nil
		})
		if !errors.Is(err, errSlideStopped) {
			return err
		}

		if s, err = h.Slide(ctx, conn.Key); err != nil {
			return err
		}
	}
	return errSlideStopped
}

func (h *Hub) listen(conn *Conn) {
	go func() {
		conn.readLoop(func(payload []byte) {
			h.deliver(context.Background(), conn, payload)
		})
		h.disconnect(context.Background(), conn)
	}()
}

// deliver hands payload to whichever coordinator currently owns conn's key,
// retrying against a rehydrated coordinator if the one it found stopped.
func (h *Hub) deliver(ctx context.Context, conn *Conn, payload []byte) {
	h.touch(ctx, conn)

	for attempt := 0; attempt < deliverAttempts; attempt++ {
		s, err := h.Slide(ctx, conn.Key)
		if err != nil {
			conn.logger.Error().Err(err).Msg("failed to load slide")
			return
		}

		err = s.Receive(ctx, conn, payload)
		switch {
		case err == nil:
			return
		case errors.Is(err, errSlideStopped):
			continue
		case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownCategory):
			conn.logger.Warn().Err(err).Msg("rejected message")
			return
		default:
			conn.logger.Error().Err(err).Msg("failed to handle message")
			return
		}
	}
	conn.logger.Error().Msg("slide kept stopping, message dropped")
}

// disconnect is the single cleanup path for a closed or failed socket.
func (h *Hub) disconnect(ctx context.Context, conn *Conn) {
	conn.Close()

	h.mu.Lock()
	conns := h.sockets[conn.Key]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(h.sockets, conn.Key)
	} else {
		h.sockets[conn.Key] = conns
	}
	s := h.slides[conn.Key]
	h.mu.Unlock()

	if s != nil {
		if err := s.Disconnect(ctx, conn); err != nil && !errors.Is(err, errSlideStopped) {
			conn.logger.Error().Err(err).Msg("failed to remove connection from slide")
		}
	}

	if h.Connections != nil {
		if err := h.Connections.Delete(ctx, conn.ID); err != nil {
			conn.logger.Error().Err(err).Msg("failed to delete connection")
		}
	}

	conn.logger.Info().Msg("connection closed")
	h.event(sundaecli.ConnectionClosedMetric, map[sundaecli.DimensionName]string{
		sundaecli.SlideKeyDimension: conn.Key,
	})
}

// release drops s from the hub if it is still the live coordinator for its
// key and stops it. Must run on s's own goroutine.
func (h *Hub) release(s *Slide) {
	h.mu.Lock()
	if h.slides[s.Key] == s {
		delete(h.slides, s.Key)
	}
	h.mu.Unlock()

	s.halt()
}

func (h *Hub) connTTL() time.Duration {
	if h.ConnTTL > 0 {
		return h.ConnTTL
	}
	return defaultConnTTL
}

func (h *Hub) retryBackoff() time.Duration {
	if h.RetryBackoff > 0 {
		return h.RetryBackoff
	}
	return defaultRetryBackoff
}

func (h *Hub) event(name sundaecli.MetricName, dimensions map[sundaecli.DimensionName]string) {
	if !h.Metrics.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Metrics.Event(ctx, name, dimensions); err != nil {
			h.Logger.Debug().Err(err).Str("metric", string(name)).Msg("failed to publish metric")
		}
	}()
}
