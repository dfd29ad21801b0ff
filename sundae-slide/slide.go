package sundaeslide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/publish"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	feedbackAttempts = 3
	registryTimeout  = 10 * time.Second
	publishTimeout   = 5 * time.Second
)

// Slide coordinates every connection viewing one slide key. All state changes
// run on a single goroutine, one job at a time, so a message is fully handled
// (identity, dispatch, counter, relay) before the next one starts.
type Slide struct {
	Key string

	hub      *Hub
	logger   zerolog.Logger
	mailbox  chan func()
	stopped  chan struct{}
	stopOnce sync.Once

	// owned by the run goroutine
	conns []*Conn
}

func newSlide(h *Hub, key string, conns []*Conn) *Slide {
	s := &Slide{
		Key:     key,
		hub:     h,
		logger:  h.Logger.With().Str("slide", key).Logger(),
		mailbox: make(chan func()),
		stopped: make(chan struct{}),
	}

	var identified int
	for _, conn := range conns {
		if conn.DeserializeAttachment().Identity != "" {
			identified++
		}
		s.add(conn)
	}
	if len(conns) > 0 {
		s.logger.Info().
			Int("connections", len(conns)).
			Int("identified", identified).
			Msg("rehydrated slide")
	}
	return s
}

// Accept upgrades the request, registers the new connection and starts
// reading from it. title is the human readable name the slide was requested
// under; it is announced to the presentation registry on a best effort basis.
func (s *Slide) Accept(w http.ResponseWriter, r *http.Request, title string) (*Conn, error) {
	conn, err := s.hub.AcceptWebSocket(w, r, s.Key)
	if err != nil {
		return nil, err
	}

	if err := s.hub.register(context.Background(), s, conn); err != nil {
		s.hub.disconnect(context.Background(), conn)
		return nil, fmt.Errorf("failed to register connection on slide %v: %w", s.Key, err)
	}

	s.announce(title)
	s.hub.listen(conn)
	return conn, nil
}

// Receive handles one inbound frame from conn.
func (s *Slide) Receive(ctx context.Context, conn *Conn, payload []byte) error {
	return s.do(ctx, func() error {
		return s.receive(ctx, conn, payload)
	})
}

// Disconnect removes conn from the registry.
func (s *Slide) Disconnect(ctx context.Context, conn *Conn) error {
	return s.do(ctx, func() error {
		s.remove(conn)
		return nil
	})
}

// Connections returns the registered connections in registration order.
func (s *Slide) Connections(ctx context.Context) ([]*Conn, error) {
	var conns []*Conn
	err := s.do(ctx, func() error {
		conns = make([]*Conn, len(s.conns))
		copy(conns, s.conns)
		return nil
	})
	return conns, err
}

// Feedback returns the slide's counter rows ordered by slide number. It reads
// the store directly and does not wait behind queued messages.
func (s *Slide) Feedback(ctx context.Context) ([]feedbackdao.Row, error) {
	return s.hub.Feedback.ListFeedback(ctx, s.Key)
}

func (s *Slide) run() {
	var (
		timer *time.Timer
		idle  <-chan time.Time
	)
	if d := s.hub.IdleTimeout; d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case job := <-s.mailbox:
			job()
			select {
			case <-s.stopped:
				return
			default:
			}
			if timer != nil {
				timer.Reset(s.hub.IdleTimeout)
			}

		case <-idle:
			s.logger.Debug().Msg("slide idle, hibernating")
			s.hub.release(s)
			return
		}
	}
}

// do runs fn on the slide's goroutine and waits for it to finish.
func (s *Slide) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	job := func() { done <- fn() }

	select {
	case s.mailbox <- job:
	case <-s.stopped:
		return errSlideStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Slide) hibernate(ctx context.Context) error {
	err := s.do(ctx, func() error {
		s.hub.release(s)
		return nil
	})
	if errors.Is(err, errSlideStopped) {
		return nil
	}
	return err
}

func (s *Slide) halt() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *Slide) add(conn *Conn) {
	for _, c := range s.conns {
		if c == conn {
			return
		}
	}
	s.conns = append(s.conns, conn)
}

func (s *Slide) remove(conn *Conn) {
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			return
		}
	}
}

func (s *Slide) announce(title string) {
	registry := s.hub.Registry
	if registry == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()

		result, err := registry.AddEntry(ctx, title, NormalizeKey(title))
		if err != nil {
			s.logger.Warn().Err(err).Str("title", title).Msg("failed to register presentation")
			return
		}
		s.logger.Debug().Str("title", title).Str("result", string(result)).Msg("registered presentation")
	}()
}

func (s *Slide) receive(ctx context.Context, conn *Conn, payload []byte) error {
	identity := s.ensureIdentity(ctx, conn)

	msg, err := ParseMessage(payload)
	if err != nil {
		conn.Send(ErrorMessage(CodeMalformedMessage, err.Error()))
		return err
	}

	if msg.Scope != ScopeBroadcast {
		s.logger.Debug().Str("scope", msg.Scope).Str("kind", msg.Kind).Msg("ignoring message")
		return nil
	}

	switch msg.Kind {
	case KindReaction:
		reaction, err := msg.Reaction()
		if err != nil {
			conn.Send(ErrorMessage(CodeMalformedMessage, err.Error()))
			return err
		}
		if err := s.recordFeedback(ctx, identity, reaction); err != nil {
			conn.Send(ErrorMessage(CodeFeedbackUnavailable, "feedback could not be recorded"))
			return err
		}
		return s.relay(conn, identity, msg)

	case KindSlidePosition:
		return s.relay(conn, identity, msg)

	default:
		s.logger.Debug().Str("kind", msg.Kind).Msg("ignoring message")
		return nil
	}
}

// ensureIdentity assigns conn an identity on its first message and
// acknowledges it to conn alone.
func (s *Slide) ensureIdentity(ctx context.Context, conn *Conn) string {
	session := conn.DeserializeAttachment()
	if session.Identity != "" {
		return session.Identity
	}

	session.Identity = uuid.NewString()
	if err := conn.SerializeAttachment(ctx, session); err != nil {
		conn.logger.Warn().Err(err).Msg("identity not persisted")
	}
	conn.Send(ConnectedMessage(session.Identity))

	conn.logger.Debug().Str("identity", session.Identity).Msg("assigned identity")
	return session.Identity
}

func (s *Slide) recordFeedback(ctx context.Context, identity string, r Reaction) error {
	var (
		backoff    = s.hub.retryBackoff()
		dimensions = map[sundaecli.DimensionName]string{
			sundaecli.SlideKeyDimension: s.Key,
			sundaecli.CategoryDimension: string(r.Category),
		}
	)

	for attempt := 1; ; attempt++ {
		err := s.hub.Feedback.RecordFeedback(ctx, s.Key, int64(r.SlideNumber), r.SlideTitle, r.Category)
		if err == nil {
			break
		}
		if attempt == feedbackAttempts {
			s.hub.event(sundaecli.ReactionFailedMetric, dimensions)
			return fmt.Errorf("failed to record feedback after %v attempts: %w", attempt, err)
		}

		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("failed to record feedback, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("failed to record feedback: %w", err)
		}
		backoff *= 2
	}

	s.hub.event(sundaecli.ReactionRecordedMetric, dimensions)
	s.publish(identity, r)
	return nil
}

func (s *Slide) publish(identity string, r Reaction) {
	events := s.hub.Events
	if events == nil {
		return
	}

	event := publish.FeedbackEvent{
		SlideKey:    s.Key,
		SlideNumber: int64(r.SlideNumber),
		SlideTitle:  r.SlideTitle,
		Category:    string(r.Category),
		Identity:    identity,
		Timestamp:   time.Now().Unix(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := events.Send(ctx, publish.FeedbackTopic(s.Key), event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish feedback event")
		}
	}()
}

// relay sends msg, tagged with the sender's identity, to every other
// registered connection in registration order. A recipient that cannot
// accept the frame is skipped.
func (s *Slide) relay(sender *Conn, identity string, msg *Message) error {
	data, err := msg.Relay(identity)
	if err != nil {
		return fmt.Errorf("failed to encode relay: %w", err)
	}

	var delivered int
	for _, conn := range s.conns {
		if conn == sender {
			continue
		}
		if conn.Send(data) {
			delivered++
		}
	}

	s.logger.Debug().Str("kind", msg.Kind).Int("recipients", delivered).Msg("relayed message")
	s.hub.event(sundaecli.MessageRelayedMetric, map[sundaecli.DimensionName]string{
		sundaecli.SlideKeyDimension:    s.Key,
		sundaecli.MessageKindDimension: msg.Kind,
	})
	return nil
}
