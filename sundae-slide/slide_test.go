package sundaeslide

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/connectiondao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func openDB(t *testing.T) *sql.DB {
	db, err := sundaesqlite.Open(context.Background(), filepath.Join(t.TempDir(), "slides.db"))
	assert.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestHub(t *testing.T) *Hub {
	db := openDB(t)
	h := &Hub{
		Feedback:     feedbackdao.NewSQLite(db),
		Connections:  connectiondao.NewSQLite(db),
		Logger:       zerolog.Nop(),
		RetryBackoff: time.Millisecond,
	}
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

// testConn attaches a socketless connection to key and registers it with
// the slide.
func testConn(t *testing.T, h *Hub, key string) *Conn {
	ctx := context.Background()
	conn := newConn(uuid.NewString(), key, nil, 32, h.Connections, h.Logger)
	h.attach(ctx, conn)

	s, err := h.Slide(ctx, key)
	assert.Nil(t, err)
	assert.Nil(t, s.do(ctx, func() error {
		s.add(conn)
		return nil
	}))
	return conn
}

func receive(t *testing.T, h *Hub, conn *Conn, body string) error {
	s, err := h.Slide(context.Background(), conn.Key)
	assert.Nil(t, err)
	return s.Receive(context.Background(), conn, []byte(body))
}

func frame(t *testing.T, conn *Conn) map[string]interface{} {
	select {
	case data := <-conn.send:
		var v map[string]interface{}
		assert.Nil(t, json.Unmarshal(data, &v))
		return v
	case <-time.After(time.Second):
		t.Fatalf("no frame for connection %v", conn.ID)
		return nil
	}
}

func noFrame(t *testing.T, conn *Conn) {
	select {
	case data := <-conn.send:
		t.Fatalf("unexpected frame for connection %v: %s", conn.ID, data)
	default:
	}
}

const navigation = `{"scope":"broadcast","kind":"slide-position-update","slideNumber":1,"clickIndex":0}`

func TestIdentityAssignedOnFirstMessage(t *testing.T) {
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	// nothing is issued at accept time
	assert.Equal(t, "", a.DeserializeAttachment().Identity)

	assert.Nil(t, receive(t, h, a, navigation))
	ack := frame(t, a)
	assert.Equal(t, KindConnected, ack["kind"])
	identity := ack["identity"].(string)
	assert.NotEmpty(t, identity)
	assert.Equal(t, identity, a.DeserializeAttachment().Identity)

	relayed := frame(t, b)
	assert.Equal(t, identity, relayed["identity"])

	// second message: no new ack, same identity
	assert.Nil(t, receive(t, h, a, navigation))
	noFrame(t, a)
	assert.Equal(t, identity, frame(t, b)["identity"])

	record, err := h.Connections.(*connectiondao.SQLite).Get(context.Background(), a.ID)
	assert.Nil(t, err)
	assert.Equal(t, identity, record.Identity)

	// b has not spoken, so it still has no identity
	assert.Equal(t, "", b.DeserializeAttachment().Identity)
}

func TestIdentitiesAreUnique(t *testing.T) {
	h := newTestHub(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		conn := testConn(t, h, "talk")
		assert.Nil(t, receive(t, h, conn, `{}`))
		identity := conn.DeserializeAttachment().Identity
		assert.False(t, seen[identity])
		seen[identity] = true
	}
}

func TestReactionIsCountedAndRelayed(t *testing.T) {
	var (
		ctx = context.Background()
		h   = newTestHub(t)
		a   = testConn(t, h, "talk")
		b   = testConn(t, h, "talk")
		c   = testConn(t, h, "talk")
	)

	err := receive(t, h, a, `{"scope":"broadcast","kind":"reaction","slideNumber":3,"slideTitle":"Intro","category":"great"}`)
	assert.Nil(t, err)

	identity := frame(t, a)["identity"]
	noFrame(t, a)

	for _, conn := range []*Conn{b, c} {
		got := frame(t, conn)
		assert.Equal(t, identity, got["identity"])
		assert.Equal(t, KindReaction, got["kind"])
		assert.Equal(t, "great", got["category"])
		assert.Equal(t, float64(3), got["slideNumber"])
	}

	s, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	rows, err := s.Feedback(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []feedbackdao.Row{{SlideKey: "talk", SlideNumber: 3, SlideTitle: "Intro", Great: 1}}, rows)
}

func TestConcurrentReactionsFromManyConnections(t *testing.T) {
	const n = 25

	var (
		ctx   = context.Background()
		h     = newTestHub(t)
		conns []*Conn
	)
	for i := 0; i < n; i++ {
		conns = append(conns, testConn(t, h, "talk"))
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			_ = receive(t, h, conn, fmt.Sprintf(`{"scope":"broadcast","kind":"reaction","slideNumber":1,"slideTitle":"T%v","category":"okay"}`, conn.ID))
		}(conn)
	}
	wg.Wait()

	s, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	rows, err := s.Feedback(ctx)
	assert.Nil(t, err)
	assert.Len(t, rows, 1)
	assert.EqualValues(t, n, rows[0].Okay)
}

func TestRelayPreservesSenderOrder(t *testing.T) {
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	for i := 0; i < 10; i++ {
		assert.Nil(t, receive(t, h, a, fmt.Sprintf(`{"scope":"broadcast","kind":"slide-position-update","slideNumber":1,"clickIndex":%v}`, i)))
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, float64(i), frame(t, b)["clickIndex"])
	}
}

func TestMalformedMessageKeepsConnection(t *testing.T) {
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	err := receive(t, h, a, `not json`)
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	assert.Equal(t, KindConnected, frame(t, a)["kind"])
	reply := frame(t, a)
	assert.Equal(t, KindError, reply["kind"])
	assert.Equal(t, CodeMalformedMessage, reply["code"])
	noFrame(t, b)

	// still registered
	assert.Nil(t, receive(t, h, a, navigation))
	assert.Equal(t, KindSlidePosition, frame(t, b)["kind"])
}

func TestUnknownCategoryIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	err := receive(t, h, a, `{"scope":"broadcast","kind":"reaction","slideNumber":1,"category":"meh"}`)
	assert.True(t, errors.Is(err, ErrUnknownCategory))
	noFrame(t, b)

	s, _ := h.Slide(ctx, "talk")
	rows, err := s.Feedback(ctx)
	assert.Nil(t, err)
	assert.Len(t, rows, 0)
}

func TestUnroutedMessagesAreDropped(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	for _, body := range []string{
		`{"scope":"broadcast","kind":"cursor-move"}`,
		`{"scope":"private","kind":"reaction","slideNumber":1,"category":"good"}`,
		`{"kind":"slide-position-update","slideNumber":1}`,
	} {
		assert.Nil(t, receive(t, h, a, body))
	}
	noFrame(t, b)

	s, _ := h.Slide(ctx, "talk")
	rows, err := s.Feedback(ctx)
	assert.Nil(t, err)
	assert.Len(t, rows, 0)
}

type flakyFeedback struct {
	FeedbackStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyFeedback) RecordFeedback(ctx context.Context, key string, number int64, title string, category feedbackdao.Category) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return errors.New("store unavailable")
	}
	return f.FeedbackStore.RecordFeedback(ctx, key, number, title, category)
}

func TestFeedbackFailureIsNotRelayed(t *testing.T) {
	h := newTestHub(t)
	store := &flakyFeedback{FeedbackStore: h.Feedback, failures: 100}
	h.Feedback = store

	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	err := receive(t, h, a, `{"scope":"broadcast","kind":"reaction","slideNumber":1,"slideTitle":"T","category":"good"}`)
	assert.NotNil(t, err)
	assert.Equal(t, feedbackAttempts, store.calls)

	assert.Equal(t, KindConnected, frame(t, a)["kind"])
	assert.Equal(t, CodeFeedbackUnavailable, frame(t, a)["code"])
	noFrame(t, b)
}

func TestFeedbackRetrySucceeds(t *testing.T) {
	h := newTestHub(t)
	store := &flakyFeedback{FeedbackStore: h.Feedback, failures: feedbackAttempts - 1}
	h.Feedback = store

	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	err := receive(t, h, a, `{"scope":"broadcast","kind":"reaction","slideNumber":1,"slideTitle":"T","category":"good"}`)
	assert.Nil(t, err)
	assert.Equal(t, feedbackAttempts, store.calls)
	assert.Equal(t, "good", frame(t, b)["category"])
}

func TestHibernateRehydratesIdentities(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	assert.Nil(t, receive(t, h, a, navigation))
	identity := frame(t, a)["identity"]
	frame(t, b)

	before, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	assert.Nil(t, h.Hibernate(ctx, "talk"))

	after, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	assert.True(t, before != after)

	conns, err := after.Connections(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []*Conn{a, b}, conns)

	// stale handle reports stopped
	err = before.Receive(ctx, a, []byte(navigation))
	assert.True(t, errors.Is(err, errSlideStopped))

	// no second ack, same identity
	assert.Nil(t, receive(t, h, a, navigation))
	noFrame(t, a)
	assert.Equal(t, identity, frame(t, b)["identity"])
}

func TestDeliverRetriesStoppedSlide(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	assert.Nil(t, h.Hibernate(ctx, "talk"))
	h.deliver(ctx, a, []byte(navigation))

	frame(t, a)
	assert.Equal(t, KindSlidePosition, frame(t, b)["kind"])
}

func TestRegisterFollowsReplacementSlide(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	b := testConn(t, h, "talk")

	stale, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	assert.Nil(t, h.Hibernate(ctx, "talk"))
	_, err = h.Slide(ctx, "talk")
	assert.Nil(t, err)

	// attached after the replacement was rehydrated, so only register can
	// place it in the live registry
	a := newConn(uuid.NewString(), "talk", nil, 32, h.Connections, h.Logger)
	h.attach(ctx, a)
	assert.Nil(t, h.register(ctx, stale, a))

	live, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	conns, err := live.Connections(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []*Conn{b, a}, conns)

	assert.Nil(t, receive(t, h, b, navigation))
	frame(t, b)
	assert.Equal(t, KindSlidePosition, frame(t, a)["kind"])
}

func TestActivityRefreshesConnectionExpiry(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	h.ConnTTL = time.Hour
	store := h.Connections.(*connectiondao.SQLite)
	a := testConn(t, h, "talk")

	// within the first half of the ttl nothing is rewritten
	before, err := store.Get(ctx, a.ID)
	assert.Nil(t, err)
	assert.Nil(t, store.Touch(ctx, a.ID, 1))
	h.deliver(ctx, a, []byte(navigation))
	frame(t, a)
	got, err := store.Get(ctx, a.ID)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, got.TTL)
	assert.Nil(t, store.Touch(ctx, a.ID, before.TTL))

	// past the halfway mark the expiry moves forward
	a.mu.Lock()
	a.expires = time.Now().Add(10 * time.Minute)
	a.mu.Unlock()
	h.deliver(ctx, a, []byte(navigation))
	got, err = store.Get(ctx, a.ID)
	assert.Nil(t, err)
	assert.True(t, got.TTL >= time.Now().Add(59*time.Minute).Unix())

	// a record the sweep already removed is restored with its identity
	n, err := store.DeleteExpired(ctx, time.Now().Add(2*time.Hour).Unix())
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	a.mu.Lock()
	a.expires = time.Now()
	a.mu.Unlock()
	h.deliver(ctx, a, []byte(navigation))
	got, err = store.Get(ctx, a.ID)
	assert.Nil(t, err)
	assert.Equal(t, a.DeserializeAttachment().Identity, got.Identity)
	assert.True(t, got.TTL > time.Now().Unix())
}

type slowSchema struct {
	FeedbackStore
	release chan struct{}
}

func (s *slowSchema) EnsureTable(ctx context.Context) error {
	<-s.release
	return s.FeedbackStore.EnsureTable(ctx)
}

func TestSchemaSetupDoesNotBlockHub(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")

	schema := &slowSchema{FeedbackStore: h.Feedback, release: make(chan struct{})}
	h.Feedback = schema

	created := make(chan *Slide)
	go func() {
		s, _ := h.Slide(ctx, "other")
		created <- s
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.WebSockets("talk")
		h.disconnect(ctx, a)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub stalled behind schema setup")
	}

	close(schema.release)
	assert.NotNil(t, <-created)
}

func TestIdleSlideHibernates(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	h.IdleTimeout = 20 * time.Millisecond

	s, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)

	select {
	case <-s.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("slide did not hibernate")
	}

	again, err := h.Slide(ctx, "talk")
	assert.Nil(t, err)
	assert.True(t, s != again)
}

func TestDisconnectRemovesConnection(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)
	a := testConn(t, h, "talk")
	b := testConn(t, h, "talk")

	h.disconnect(ctx, b)

	select {
	case <-b.Done():
	default:
		t.Fatal("connection not closed")
	}
	assert.Equal(t, []*Conn{a}, h.WebSockets("talk"))

	s, _ := h.Slide(ctx, "talk")
	conns, err := s.Connections(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []*Conn{a}, conns)

	_, err = h.Connections.(*connectiondao.SQLite).Get(ctx, b.ID)
	assert.True(t, errors.Is(err, connectiondao.ErrNotFound))

	// relays skip the closed connection
	assert.Nil(t, receive(t, h, a, navigation))
	assert.False(t, b.Send([]byte("x")))
}

func TestFullSendBufferClosesRecipient(t *testing.T) {
	h := newTestHub(t)
	a := testConn(t, h, "talk")

	slow := newConn(uuid.NewString(), "talk", nil, 1, nil, h.Logger)
	h.attach(context.Background(), slow)
	s, _ := h.Slide(context.Background(), "talk")
	assert.Nil(t, s.do(context.Background(), func() error {
		s.add(slow)
		return nil
	}))

	assert.Nil(t, receive(t, h, a, navigation))
	assert.Nil(t, receive(t, h, a, navigation))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection should be closed")
	}
}

func TestSlidesAreIsolated(t *testing.T) {
	h := newTestHub(t)
	a := testConn(t, h, "one")
	b := testConn(t, h, "two")

	assert.Nil(t, receive(t, h, a, navigation))
	frame(t, a)
	noFrame(t, b)
}

func TestSlideRequiresKey(t *testing.T) {
	_, err := newTestHub(t).Slide(context.Background(), "")
	assert.NotNil(t, err)
}
