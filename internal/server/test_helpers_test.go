package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dles/internal/config"
	"dles/internal/db"
	"dles/internal/dbtest"
	"dles/internal/raceevents"
	"dles/internal/roles"

	"gorm.io/gorm"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	db     *gorm.DB
	broker *raceevents.MemoryBroker
	clock  *testClock
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	cfg := config.Default()
	for _, fn := range mutate {
		fn(&cfg)
	}
	clock := &testClock{now: time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)}
	broker := raceevents.NewMemoryBroker()
	srv := New(conn, cfg, Options{Broker: broker, Now: clock.Now})
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		_ = broker.Close()
	})
	return &testEnv{srv: srv, ts: ts, db: conn, broker: broker, clock: clock}
}

// createUser stores a user with role and returns it with a session token.
func (e *testEnv) createUser(t *testing.T, name string, role roles.Role) (db.User, string) {
	t.Helper()
	user := db.User{Name: name, Email: name + "@example.com", Role: role}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _, err := e.srv.Sessions().Issue(context.Background(), user.ID, 0)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return user, token
}

func (e *testEnv) createGame(t *testing.T, title, link, topic string) db.Game {
	t.Helper()
	game := db.Game{Title: title, Link: link, Topic: topic}
	if err := e.db.Create(&game).Error; err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}
