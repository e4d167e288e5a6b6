package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"dles/internal/raceevents"
	"dles/internal/roles"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Type  string          `json:"type"`
	Seq   uint            `json:"seq"`
	Race  *raceSnapshot   `json:"race"`
	Event json.RawMessage `json:"event"`
}

func dialRace(t *testing.T, env *testEnv, raceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/race/" + raceID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitForSubscribers(t *testing.T, broker *raceevents.MemoryBroker, raceID string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for broker.Subscribers(raceID) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers on %s", want, raceID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRaceWebsocketStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	fx := createGuestRace(t, env)
	_, userToken := env.createUser(t, "watcher", roles.Member)

	conn := dialRace(t, env, fx.id)
	first := readFrame(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Race)
	assert.Equal(t, fx.id, first.Race.ID)
	assert.Len(t, first.Race.Participants, 1)

	waitForSubscribers(t, env.broker, fx.id, 1)
	resp := doRequest(t, env.ts, http.MethodPost, "/api/race/"+fx.id+"/join", map[string]any{}, withToken(userToken))
	expectStatus(t, resp, http.StatusOK)

	joined := readFrame(t, conn)
	assert.Equal(t, raceevents.TypeJoined, joined.Type)
	assert.NotZero(t, joined.Seq)
	require.NotNil(t, joined.Race)
	assert.Len(t, joined.Race.Participants, 2)
	assert.Equal(t, 1, joined.Race.Version)

	var payload RaceEventPayload
	require.NoError(t, json.Unmarshal(joined.Event, &payload))
	assert.Equal(t, "watcher", payload.Name)
}

func TestRaceWebsocketClosesOnDelete(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	fx := createGuestRace(t, env)

	conn := dialRace(t, env, fx.id)
	assert.Equal(t, "snapshot", readFrame(t, conn).Type)
	waitForSubscribers(t, env.broker, fx.id, 1)

	resp := doRequest(t, env.ts, http.MethodDelete, "/api/race/"+fx.id, nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)

	deleted := readFrame(t, conn)
	assert.Equal(t, raceevents.TypeDeleted, deleted.Type)
	assert.Nil(t, deleted.Race)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestRaceWebsocketUnknownRace(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/race/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
