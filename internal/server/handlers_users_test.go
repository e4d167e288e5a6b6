package server

import (
	"io"
	"net/http"
	"testing"

	"dles/internal/db"
	"dles/internal/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateUserRoleMatrix(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.createUser(t, "owner", roles.Owner)
	coowner, coownerToken := env.createUser(t, "coowner", roles.Coowner)
	otherCoowner, _ := env.createUser(t, "second", roles.Coowner)
	member, memberToken := env.createUser(t, "member", roles.Member)
	admin, adminToken := env.createUser(t, "admin", roles.Admin)

	cases := []struct {
		name    string
		token   string
		userID  string
		role    roles.Role
		status  int
		message string
	}{
		{"coowner cannot hand out owner", coownerToken, member.ID, roles.Owner, http.StatusForbidden, "You cannot assign this role"},
		{"coowner cannot change a peer", coownerToken, otherCoowner.ID, roles.Member, http.StatusForbidden, "You cannot modify this user's role"},
		{"owner cannot demote themselves", ownerToken, owner.ID, roles.Admin, http.StatusForbidden, "Owner cannot demote themselves"},
		{"admin cannot manage users", adminToken, member.ID, roles.Admin, http.StatusForbidden, "Forbidden"},
		{"member cannot manage users", memberToken, admin.ID, roles.Member, http.StatusForbidden, "Forbidden"},
		{"signed out", "", member.ID, roles.Admin, http.StatusUnauthorized, "Unauthorized"},
		{"unknown user", ownerToken, "missing", roles.Admin, http.StatusNotFound, "User not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, env.ts, http.MethodPatch, "/api/users", map[string]any{
				"userId": tc.userID,
				"role":   tc.role,
			}, withToken(tc.token))
			expectError(t, resp, tc.status, tc.message)
		})
	}

	resp := doRequest(t, env.ts, http.MethodPatch, "/api/users", map[string]any{"userId": member.ID, "role": "wizard"}, withToken(ownerToken))
	expectError(t, resp, http.StatusBadRequest, "Invalid role")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/users", map[string]any{"userId": member.ID, "role": roles.Admin}, withToken(coownerToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, string(roles.Admin), decodeBody(t, resp)["role"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/users", map[string]any{"userId": coowner.ID, "role": roles.Member}, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)

	var stored db.User
	require.NoError(t, env.db.First(&stored, "id = ?", coowner.ID).Error)
	assert.Equal(t, roles.Member, stored.Role)
}

func TestDeleteUserRules(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner", roles.Owner)
	admin, adminToken := env.createUser(t, "admin", roles.Admin)
	member, memberToken := env.createUser(t, "member", roles.Member)
	other, _ := env.createUser(t, "other", roles.Member)

	resp := doRequest(t, env.ts, http.MethodPost, "/api/lists", map[string]any{"name": "Doomed"}, withToken(memberToken))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/users?userId="+admin.ID, nil, withToken(adminToken))
	expectError(t, resp, http.StatusForbidden, "Cannot delete yourself")

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/users?userId="+other.ID, nil, withToken(memberToken))
	expectError(t, resp, http.StatusForbidden, "You cannot delete this user")

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/users", nil, withToken(ownerToken))
	expectError(t, resp, http.StatusBadRequest, "User ID required")

	resp = doRequest(t, env.ts, http.MethodDelete, "/api/users?userId="+member.ID, nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)

	var lists int64
	require.NoError(t, env.db.Model(&db.GameList{}).Where("user_id = ?", member.ID).Count(&lists).Error)
	assert.Zero(t, lists)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/auth/current-user", nil, withToken(memberToken))
	expectError(t, resp, http.StatusUnauthorized, "Unauthorized")
}

func TestListUsersRequiresUserManagement(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner", roles.Owner)
	_, adminToken := env.createUser(t, "admin", roles.Admin)

	resp := doRequest(t, env.ts, http.MethodGet, "/api/users", nil)
	expectError(t, resp, http.StatusUnauthorized, "Unauthorized")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/users", nil, withToken(adminToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/users", nil, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Len(t, decodeList(t, resp), 2)
}

func TestCurrentUserAndSignOut(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "coowner", roles.Coowner)

	resp := doRequest(t, env.ts, http.MethodGet, "/api/auth/current-user", nil, withCookie(sessionCookie, token))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.Equal(t, string(roles.Coowner), body["effectiveRole"])
	permissions := body["permissions"].(map[string]any)
	assert.Equal(t, true, permissions["canManageUsers"])
	assert.Equal(t, []any{string(roles.Admin), string(roles.Member)}, permissions["assignableRoles"])

	resp = doRequest(t, env.ts, http.MethodPost, "/api/auth/sign-out", nil, withToken(token))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/auth/current-user", nil, withToken(token))
	expectError(t, resp, http.StatusUnauthorized, "Unauthorized")
}

func TestViewAsOnlyAffectsPages(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner", roles.Owner)
	_, adminToken := env.createUser(t, "admin", roles.Admin)

	resp := doRequest(t, env.ts, http.MethodPost, "/api/auth/view-as", map[string]any{"role": "member"}, withToken(adminToken))
	expectError(t, resp, http.StatusForbidden, "Only the owner can view as another role")

	resp = doRequest(t, env.ts, http.MethodPost, "/api/auth/view-as", map[string]any{"role": "member"}, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, string(roles.Member), decodeBody(t, resp)["effectiveRole"])
	var viewAs *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == viewAsCookie {
			viewAs = cookie
		}
	}
	require.NotNil(t, viewAs)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/auth/current-user", nil,
		withToken(ownerToken), withCookie(viewAsCookie, viewAs.Value))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.Equal(t, string(roles.Member), body["effectiveRole"])
	assert.Equal(t, string(roles.Owner), body["user"].(map[string]any)["role"])

	resp = doRequest(t, env.ts, http.MethodPost, "/api/games", map[string]any{
		"title": "Still allowed",
		"link":  "https://allowed.example.com",
		"topic": "words",
	}, withToken(ownerToken), withCookie(viewAsCookie, viewAs.Value))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/admin", nil,
		withToken(ownerToken), withCookie(viewAsCookie, viewAs.Value))
	expectStatus(t, resp, http.StatusOK)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Viewing as member")
	assert.NotContains(t, string(page), `href="/admin"`)
}

func TestSubmissionReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	member, memberToken := env.createUser(t, "member", roles.Member)
	_, adminToken := env.createUser(t, "admin", roles.Admin)

	resp := doRequest(t, env.ts, http.MethodPost, "/api/submissions", map[string]any{
		"title":       "Costcodle",
		"link":        "https://costcodle.example.com",
		"topic":       "trivia",
		"description": "Guess the price",
	}, withToken(memberToken))
	expectStatus(t, resp, http.StatusOK)
	submission := decodeBody(t, resp)
	submissionID := submission["id"].(string)
	assert.Equal(t, db.SubmissionPending, submission["status"])
	assert.Equal(t, member.ID, submission["submittedBy"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/submissions/mine", nil, withToken(memberToken))
	expectStatus(t, resp, http.StatusOK)
	assert.Len(t, decodeList(t, resp), 1)

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/submissions", map[string]any{"id": submissionID, "status": "APPROVED"}, withToken(memberToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/admin/submissions?status=pending", nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	pending := decodeList(t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, "member", pending[0]["user"].(map[string]any)["name"])

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/submissions", map[string]any{"id": submissionID, "status": "APPROVED"}, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
	reviewed := decodeBody(t, resp)
	assert.Equal(t, db.SubmissionApproved, reviewed["status"])
	require.NotNil(t, reviewed["gameId"])

	var game db.Game
	require.NoError(t, env.db.First(&game, "id = ?", reviewed["gameId"]).Error)
	assert.Equal(t, "https://costcodle.example.com", game.Link)

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/submissions", map[string]any{"id": submissionID, "status": "REJECTED"}, withToken(adminToken))
	expectError(t, resp, http.StatusConflict, "Submission has already been reviewed")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/submissions", map[string]any{"id": "missing", "status": "REJECTED"}, withToken(adminToken))
	expectError(t, resp, http.StatusNotFound, "Submission not found")

	resp = doRequest(t, env.ts, http.MethodGet, "/api/admin/submissions?status=lost", nil, withToken(adminToken))
	expectError(t, resp, http.StatusBadRequest, "Invalid status")
}

func TestSubmissionsCanBeDisabled(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "member", roles.Member)
	require.NoError(t, env.db.Model(&db.SiteConfig{}).Where("id = ?", db.SiteConfigID).
		Update("enable_community_submissions", false).Error)

	resp := doRequest(t, env.ts, http.MethodPost, "/api/submissions", map[string]any{
		"title": "Blocked",
		"link":  "https://blocked.example.com",
		"topic": "words",
	}, withToken(token))
	expectError(t, resp, http.StatusForbidden, "Submissions are currently disabled")
}

func TestUpdateSettingsValidatesRanges(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner", roles.Owner)
	_, adminToken := env.createUser(t, "admin", roles.Admin)

	resp := doRequest(t, env.ts, http.MethodPatch, "/api/admin/settings", map[string]any{"newGameDays": 400}, withToken(ownerToken))
	expectError(t, resp, http.StatusBadRequest, "newGameDays must be between 0 and 365")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/settings", map[string]any{"defaultSort": "random"}, withToken(ownerToken))
	expectError(t, resp, http.StatusBadRequest, "Invalid default sort")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/settings", map[string]any{"maintenanceMode": true}, withToken(adminToken))
	expectError(t, resp, http.StatusForbidden, "Forbidden")

	resp = doRequest(t, env.ts, http.MethodPatch, "/api/admin/settings", map[string]any{
		"welcomeMessage":     "Hello players",
		"showWelcomeMessage": true,
		"minPlayStreak":      3,
	}, withToken(ownerToken))
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	assert.Equal(t, "Hello players", body["welcomeMessage"])
	assert.EqualValues(t, 3, body["minPlayStreak"])

	resp = doRequest(t, env.ts, http.MethodGet, "/api/settings", nil)
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, true, decodeBody(t, resp)["showWelcomeMessage"])
}

func TestMaintenanceModeGatesPagesOnly(t *testing.T) {
	env := newTestEnv(t)
	_, memberToken := env.createUser(t, "member", roles.Member)
	_, adminToken := env.createUser(t, "admin", roles.Admin)
	require.NoError(t, env.db.Model(&db.SiteConfig{}).Where("id = ?", db.SiteConfigID).
		Update("maintenance_mode", true).Error)

	resp := doRequest(t, env.ts, http.MethodGet, "/", nil, withToken(memberToken))
	expectStatus(t, resp, http.StatusServiceUnavailable)

	resp = doRequest(t, env.ts, http.MethodGet, "/api/games", nil, withToken(memberToken))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/", nil, withToken(adminToken))
	expectStatus(t, resp, http.StatusOK)
}

func TestPagesRedirectSignedOutVisitors(t *testing.T) {
	env := newTestEnv(t)
	_, memberToken := env.createUser(t, "member", roles.Member)

	for _, path := range []string{"/lists", "/dashboard", "/submit", "/race/stats", "/admin"} {
		resp := doRequest(t, env.ts, http.MethodGet, path, nil)
		expectStatus(t, resp, http.StatusFound)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}

	resp := doRequest(t, env.ts, http.MethodGet, "/admin", nil, withToken(memberToken))
	expectStatus(t, resp, http.StatusFound)

	resp = doRequest(t, env.ts, http.MethodGet, "/dashboard", nil, withToken(memberToken))
	expectStatus(t, resp, http.StatusOK)

	resp = doRequest(t, env.ts, http.MethodGet, "/race/missing", nil)
	expectStatus(t, resp, http.StatusFound)
	assert.Equal(t, "/race/new", resp.Header.Get("Location"))
}
