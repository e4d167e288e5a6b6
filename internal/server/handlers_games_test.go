package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"dles/internal/db"
	"dles/internal/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGameRequiresManageRole(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	_, memberToken := env.createUser(t, "member", roles.Member)

	resp := doRequest(t, env.ts, http.MethodPost, "/api/games", map[string]any{
		"title": "Wordle",
		"link":  "https://wordle.example.com",
		"topic": "words",
	}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "Wordle", body["title"])

	resp = doRequest(t, env.ts, http.MethodPost, "/api/games", map[string]any{
		"title": "Worldle",
		"link":  "https://worldle.example.com",
		"topic": "geography",
	}, withToken(memberToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")

	var count int64
	require.NoError(t, env.db.Model(&db.Game{}).Where("link = ?", "https://worldle.example.com").Count(&count).Error)
	assert.Zero(t, count)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/games", map[string]any{
		"title": "Worldle",
		"link":  "https://worldle.example.com",
		"topic": "geography",
	})
	expectError(t, resp, http.StatusUnauthorized, "Unauthorized")
}

func TestCreateGameRejectsDuplicateLink(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)
	env.createGame(t, "Connections", "https://connections.example.com", "puzzle")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/games", map[string]any{
		"title": "Connections again",
		"link":  "https://connections.example.com",
		"topic": "puzzle",
	}, withToken(token))
	expectError(t, resp, http.StatusConflict, "A game with this link already exists")
}

func TestCreateGameValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)

	cases := []struct {
		name    string
		payload map[string]any
		message string
	}{
		{
			name:    "unsafe link",
			payload: map[string]any{"title": "Bad", "link": "javascript:alert(1)", "topic": "words"},
			message: "URL must use HTTP or HTTPS protocol",
		},
		{
			name:    "unknown topic",
			payload: map[string]any{"title": "Bad", "link": "https://bad.example.com", "topic": "cooking"},
			message: "Invalid topic",
		},
		{
			name:    "blank title",
			payload: map[string]any{"title": "   ", "link": "https://bad.example.com", "topic": "words"},
			message: "Title is required",
		},
		{
			name:    "blank title and bad topic",
			payload: map[string]any{"title": " ", "link": "https://bad.example.com", "topic": "cooking"},
			message: "Title is required, Invalid topic",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, env.ts, http.MethodPost, "/api/games", tc.payload, withToken(token))
			expectError(t, resp, http.StatusBadRequest, tc.message)
		})
	}
}

func TestListGamesFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.createGame(t, "Alpha Words", "https://alpha.example.com", "words")
	env.createGame(t, "Beta Map", "https://beta.example.com", "geography")
	env.createGame(t, "Gamma Words", "https://gamma.example.com", "words")
	archived := env.createGame(t, "Delta Words", "https://delta.example.com", "words")
	require.NoError(t, env.db.Model(&archived).Update("archived", true).Error)

	resp := doRequest(t, env.ts, http.MethodGet, "/api/games?q=words&limit=1&sort=title&order=desc", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["totalPages"])
	games := body["games"].([]any)
	require.Len(t, games, 1)
	assert.Equal(t, "Gamma Words", games[0].(map[string]any)["title"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/games?topics=geography", nil)
	expectStatus(t, resp, http.StatusOK)
	body = decodeBody(t, resp)
	assert.EqualValues(t, 1, body["total"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/games?archived=all", nil)
	expectStatus(t, resp, http.StatusOK)
	body = decodeBody(t, resp)
	assert.EqualValues(t, 4, body["total"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/games?topics=cooking", nil)
	expectError(t, resp, http.StatusBadRequest, "Invalid topic")
}

func TestListGamesSearchTreatsWildcardsLiterally(t *testing.T) {
	env := newTestEnv(t)
	env.createGame(t, "Wordle", "https://wordle.example.com", "words")
	env.createGame(t, "Globle", "https://globle.example.com", "geography")
	env.createGame(t, "Sum 100%", "https://sums.example.com/best_of", "puzzle")

	cases := []struct {
		q    string
		want int
	}{
		{q: "_", want: 1},
		{q: "%", want: 1},
		{q: "w_r", want: 0},
		{q: "best_of", want: 1},
		{q: "100%", want: 1},
		{q: `\`, want: 0},
		{q: "LE", want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.q, func(t *testing.T) {
			resp := doRequest(t, env.ts, http.MethodGet, "/api/games?q="+url.QueryEscape(tc.q), nil)
			expectStatus(t, resp, http.StatusOK)
			assert.EqualValues(t, tc.want, decodeBody(t, resp)["total"])
		})
	}
}

func TestGetGameMarksNewGames(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t, "Fresh", "https://fresh.example.com", "trivia")

	resp := doRequest(t, env.ts, http.MethodGet, "/api/games/"+game.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.Equal(t, game.ID, body["id"])
	assert.Contains(t, body, "isNew")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/games/missing", nil)
	expectError(t, resp, http.StatusNotFound, "Game not found")
}

func TestPlayGameRecordsSignedInPlays(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "player", roles.Member)
	game := env.createGame(t, "Daily", "https://daily.example.com", "puzzle")

	resp := doRequest(t, env.ts, http.MethodPatch, "/api/games/"+game.ID+"/play", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, resp)["playCount"])

	var userGame db.UserGame
	require.NoError(t, env.db.Where("user_id = ? AND game_id = ?", user.ID, game.ID).First(&userGame).Error)
	assert.True(t, userGame.Played)

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/games/"+game.ID+"/play", nil)
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 2, decodeBody(t, resp)["playCount"])

	var logs int64
	require.NoError(t, env.db.Model(&db.GamePlayLog{}).Where("game_id = ?", game.ID).Count(&logs).Error)
	assert.EqualValues(t, 1, logs)

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/games/missing/play", nil)
	expectError(t, resp, http.StatusNotFound, "Game not found")
}

func TestUpdateAndDeleteGame(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)
	game := env.createGame(t, "Old", "https://old.example.com", "words")
	env.createGame(t, "Other", "https://other.example.com", "words")

	resp := doRequest(t, env.ts, http.MethodPut, "/api/games/"+game.ID, map[string]any{"title": "New"}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, "New", decodeBody(t, resp)["title"])

	resp = doRequest(t, env.ts, http.MethodPut, "/api/games/"+game.ID, map[string]any{"link": "https://other.example.com"}, withToken(token))
	expectError(t, resp, http.StatusConflict, "A game with this link already exists")

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/games/"+game.ID, nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/games/"+game.ID, nil, withToken(token))
	expectError(t, resp, http.StatusNotFound, "Game not found")
}

func TestSetEmbedRequiresBoolean(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "member", roles.Member)
	game := env.createGame(t, "Framed", "https://framed.example.com", "trivia")

	resp := doRequest(t, env.ts, http.MethodPatch, "/api/games/"+game.ID+"/embed", map[string]any{}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "embedSupported must be a boolean")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/games/"+game.ID+"/embed", map[string]any{"embedSupported": false}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, false, decodeBody(t, resp)["embedSupported"])
}

func TestBulkUpdateOnlyTouchesWhitelistedFields(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)
	first := env.createGame(t, "First", "https://first.example.com", "words")
	second := env.createGame(t, "Second", "https://second.example.com", "words")
	ids := []string{first.ID, second.ID}

	resp := doRequest(t, env.ts, http.MethodPost, "/api/admin/games/bulk", map[string]any{
		"action":  "update",
		"gameIds": ids,
		"data":    map[string]any{"topic": "geography", "title": "hijacked", "playCount": 99},
	}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 2, decodeBody(t, resp)["count"])

	var games []db.Game
	require.NoError(t, env.db.Order("title asc").Find(&games).Error)
	require.Len(t, games, 2)
	assert.Equal(t, "First", games[0].Title)
	assert.Equal(t, "geography", games[0].Topic)
	assert.Zero(t, games[1].PlayCount)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/games/bulk", map[string]any{
		"action":  "update",
		"gameIds": ids,
		"data":    map[string]any{},
	}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "No update data provided")

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/games/bulk", map[string]any{
		"action":  "archive",
		"gameIds": ids,
	}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	var archived int64
	require.NoError(t, env.db.Model(&db.Game{}).Where("archived = ?", true).Count(&archived).Error)
	assert.EqualValues(t, 2, archived)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/games/bulk", map[string]any{
		"action":  "delete",
		"gameIds": []string{first.ID},
	}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, resp)["count"])
	var remaining int64
	require.NoError(t, env.db.Model(&db.Game{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/games/bulk", map[string]any{
		"action":  "explode",
		"gameIds": ids,
	}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "Invalid action")
}

func TestImportGamesFromCSV(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)
	env.createGame(t, "Existing", "https://existing.example.com", "words")

	csv := strings.Join([]string{
		"title,link,topic",
		"Fresh,https://fresh.example.com,trivia",
		"Existing renamed,https://existing.example.com,puzzle",
		"Broken,notaurl,words",
	}, "\n")
	resp := doRequest(t, env.ts, http.MethodPost, "/api/admin/games/import", nil,
		withToken(token), withBody("text/csv", []byte(csv)))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["created"])
	assert.EqualValues(t, 1, body["updated"])
	assert.EqualValues(t, 1, body["failed"])

	var existing db.Game
	require.NoError(t, env.db.Where("link = ?", "https://existing.example.com").First(&existing).Error)
	assert.Equal(t, "Existing renamed", existing.Title)
	assert.Equal(t, "puzzle", existing.Topic)
}

func TestImportGamesFromJSON(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "admin", roles.Admin)

	records := make([]map[string]any, 0, 3)
	for i := 0; i < 3; i++ {
		records = append(records, map[string]any{
			"title": fmt.Sprintf("Game %d", i),
			"link":  fmt.Sprintf("https://game%d.example.com", i),
			"topic": "trivia",
		})
	}
	resp := doRequest(t, env.ts, http.MethodPost, "/api/admin/games/import", records, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 3, decodeBody(t, resp)["created"])

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/games/import", []any{}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "No games to import")
}

func TestExportSetsAttachmentFilename(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner", roles.Owner)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	env.createGame(t, "Exported", "https://exported.example.com", "words")

	resp := doRequest(t, env.ts, http.MethodGet, "/api/admin/export/games", nil, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, `attachment; filename="games-export-2026-05-04.json"`, resp.Header.Get("Content-Disposition"))
	games := decodeList(t, resp)
	require.Len(t, games, 1)
	assert.Equal(t, "Exported", games[0]["title"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/admin/export/users", nil, withToken(adminToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")
}
