package server

import (
	"net/http"
	"testing"

	"dles/internal/db"
	"dles/internal/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "lister", roles.Member)
	game := env.createGame(t, "Nerdle", "https://nerdle.example.com", "puzzle")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "  Morning   run "}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	created := decodeBody(t, resp)
	listID := created["id"].(string)
	assert.Equal(t, "Morning run", created["name"])
	assert.Equal(t, db.DefaultListColor, created["color"])

	for i := 0; i < 2; i++ {
		resp = doRequest(t, env.ts, http.MethodPost, "/api/lists/"+listID+"/games", map[string]any{"gameId": game.ID}, withToken(token))
		expectStatus(t, resp, http.StatusOK)
		body := decodeBody(t, resp)
		assert.EqualValues(t, 1, body["gameCount"])
	}

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/lists/"+listID, map[string]any{"color": "#12ab34"}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, "#12ab34", decodeBody(t, resp)["color"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/lists/"+listID, map[string]any{"color": "not a color!"}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "Invalid color")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/lists", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	lists := decodeList(t, resp)
	require.Len(t, lists, 1)
	assert.Equal(t, []any{game.ID}, lists[0]["games"])

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/lists/"+listID+"/games", map[string]any{"gameId": game.ID}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 0, decodeBody(t, resp)["gameCount"])

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/lists/"+listID, nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	var count int64
	require.NoError(t, env.db.Model(&db.GameList{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRemovedListGamesStayRemovedAfterEdits(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "editor", roles.Member)
	kept := env.createGame(t, "Worldle", "https://worldle.example.com", "geography")
	dropped := env.createGame(t, "Heardle", "https://heardle.example.com", "entertainment")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "Daily"}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	listID := decodeBody(t, resp)["id"].(string)
	for _, game := range []db.Game{kept, dropped} {
		resp = doRequest(t, env.ts, http.MethodPost, "/api/lists/"+listID+"/games", map[string]any{"gameId": game.ID}, withToken(token))
		expectStatus(t, resp, http.StatusOK)
	}

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/lists/"+listID+"/games", map[string]any{"gameId": dropped.ID}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, resp)["gameCount"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/lists/"+listID, map[string]any{"name": "Daily picks"}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, resp)["gameCount"])

	var rows int64
	require.NoError(t, env.db.Table("game_list_games").Where("game_list_id = ?", listID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/lists", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	lists := decodeList(t, resp)
	require.Len(t, lists, 1)
	assert.Equal(t, []any{kept.ID}, lists[0]["games"])
}

func TestRemovedPresetGamesStayRemovedAfterEdits(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	game := env.createGame(t, "Framed", "https://framed.example.com", "entertainment")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists", map[string]any{"name": "Cinema"}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	presetID := decodeBody(t, resp)["id"].(string)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists/"+presetID+"/games", map[string]any{"gameId": game.ID}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	resp = doRequest(t, env.ts, http.MethodDelete, "/api/admin/preset-lists/"+presetID+"/games", map[string]any{"gameId": game.ID}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 0, decodeBody(t, resp)["gameCount"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/preset-lists/"+presetID, map[string]any{"name": "Cinema night"}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.Equal(t, "Cinema night", body["name"])
	assert.EqualValues(t, 0, body["gameCount"])

	var rows int64
	require.NoError(t, env.db.Table("preset_list_games").Where("preset_list_id = ?", presetID).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestListsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "alice", roles.Member)
	_, otherToken := env.createUser(t, "bob", roles.Member)
	game := env.createGame(t, "Globle", "https://globle.example.com", "geography")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "Mine"}, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)
	listID := decodeBody(t, resp)["id"].(string)

	resp = doRequest(t, env.ts, http.MethodPost, "/api/lists/"+listID+"/games", map[string]any{"gameId": game.ID}, withToken(otherToken))
	expectError(t, resp, http.StatusNotFound, "List not found")

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/lists/"+listID, nil, withToken(otherToken))
	expectError(t, resp, http.StatusNotFound, "List not found")

	resp = doRequest(t, env.ts, http.MethodPost, "/api/lists/"+listID+"/games", map[string]any{"gameId": "missing"}, withToken(ownerToken))
	expectError(t, resp, http.StatusNotFound, "Game not found")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/lists", nil)
	expectError(t, resp, http.StatusUnauthorized, "Unauthorized")
}

func TestCreateListEnforcesLimit(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "collector", roles.Member)
	require.NoError(t, env.db.Model(&db.SiteConfig{}).Where("id = ?", db.SiteConfigID).Update("max_custom_lists", 2).Error)

	for _, name := range []string{"One", "Two"} {
		resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": name}, withToken(token))
		expectStatus(t, resp, http.StatusOK)
	}
	resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "Three"}, withToken(token))
	expectError(t, resp, http.StatusForbidden, "List limit reached")

	resp = doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "   "}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "List name is required")
}

func TestPresetListsAdminAndPublic(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	_, memberToken := env.createUser(t, "member", roles.Member)
	game := env.createGame(t, "Tradle", "https://tradle.example.com", "geography")

	resp := doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists", map[string]any{"name": "Geo pack"}, withToken(memberToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists", map[string]any{"name": "Geo pack"}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	first := decodeBody(t, resp)
	firstID := first["id"].(string)
	assert.Equal(t, true, first["isActive"])

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists", map[string]any{"name": "Hidden pack"}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	second := decodeBody(t, resp)
	secondID := second["id"].(string)
	assert.Greater(t, second["order"].(float64), first["order"].(float64))

	resp = doRequest(t, env.ts, http.MethodPost, "/api/admin/preset-lists/"+firstID+"/games", map[string]any{"gameId": game.ID}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	assert.EqualValues(t, 1, decodeBody(t, resp)["gameCount"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/preset-lists/"+secondID, map[string]any{"isActive": false}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/preset-lists", nil)
	expectStatus(t, resp, http.StatusOK)
	public := decodeList(t, resp)
	require.Len(t, public, 1)
	assert.Equal(t, "Geo pack", public[0]["name"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/admin/preset-lists", nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Len(t, decodeList(t, resp), 2)

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/admin/preset-lists/"+secondID, nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/preset-lists/"+secondID, map[string]any{"name": "Gone"}, withToken(adminToken))
	expectError(t, resp, http.StatusNotFound, "Preset list not found")
}

func TestUserGameStateAndStats(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "tracker", roles.Member)
	played := env.createGame(t, "Played", "https://played.example.com", "words")
	hidden := env.createGame(t, "Hidden", "https://hidden.example.com", "trivia")
	env.createGame(t, "Untouched", "https://untouched.example.com", "puzzle")

	resp := doRequest(t, env.ts, http.MethodPatch, "/api/user-games/"+hidden.ID, map[string]any{}, withToken(token))
	expectError(t, resp, http.StatusBadRequest, "Nothing to update")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/user-games/missing", map[string]any{"hidden": true}, withToken(token))
	expectError(t, resp, http.StatusNotFound, "Game not found")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/user-games/"+hidden.ID, map[string]any{"hidden": true}, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, true, decodeBody(t, resp)["hidden"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/games/"+played.ID+"/play", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/stats", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["playedToday"])
	assert.EqualValues(t, 2, body["totalGames"])
	assert.Len(t, body["hiddenGames"], 1)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/user-games", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	assert.Len(t, decodeList(t, resp), 2)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/stats/enhanced", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)
	enhanced := decodeBody(t, resp)
	require.Contains(t, enhanced, "insights")
	insights := enhanced["insights"].(map[string]any)
	assert.EqualValues(t, 1, insights["totalPlays"])
}
