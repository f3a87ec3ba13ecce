package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacedrift/internal/ratelimit"
	"spacedrift/internal/records"
)

func newRecordsRouter(t *testing.T) *echo.Echo {
	t.Helper()
	router := NewRouter(nil)
	service := records.NewService(records.NewFileStore(t.TempDir()), nil)
	require.NoError(t, NewRecordsController(service, ratelimit.New(nil, nil), nil).Resolve(router))
	return router
}

func request(router *echo.Echo, method, path, ip, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["error"]
}

func TestSubmitScoreValidation(t *testing.T) {
	router := newRecordsRouter(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing player", `{"score": 10}`, "Missing fields"},
		{"missing score", `{"playerId": "p1"}`, "Missing fields"},
		{"negative", `{"playerId": "p1", "score": -1}`, "Invalid score"},
		{"too large", `{"playerId": "p1", "score": 1e10}`, "Invalid score"},
		{"not json", `{"playerId":`, "Missing fields"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := request(router, http.MethodPost, "/leaderboard", "10.0.0.1", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, errorBody(t, rec))
		})
	}
}

func TestLeaderboardSortedByScore(t *testing.T) {
	router := newRecordsRouter(t)

	rec := request(router, http.MethodGet, "/leaderboard", "10.0.0.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, body := range []string{
		`{"playerId": "p1", "name": "Ann", "score": 5}`,
		`{"playerId": "p2", "name": "<b>Bob</b>", "score": 50}`,
		`{"playerId": "p3", "score": 20}`,
	} {
		rec := request(router, http.MethodPost, "/leaderboard", "10.0.0.1", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success": true}`, rec.Body.String())
	}

	rec = request(router, http.MethodGet, "/leaderboard", "10.0.0.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []records.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"p2", "p3", "p1"}, []string{entries[0].PlayerID, entries[1].PlayerID, entries[2].PlayerID})
	assert.Equal(t, "bBobb", entries[0].Name)
	assert.Equal(t, "Player", entries[1].Name)
}

func TestLeaderboardRateLimitPerIP(t *testing.T) {
	router := newRecordsRouter(t)
	body := `{"playerId": "p1", "score": 1}`

	for i := 0; i < leaderboardLimit; i++ {
		rec := request(router, http.MethodPost, "/leaderboard", "10.0.0.1", body)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := request(router, http.MethodPost, "/leaderboard", "10.0.0.1", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", errorBody(t, rec))

	rec = request(router, http.MethodPost, "/leaderboard", "10.0.0.2", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(router, http.MethodGet, "/leaderboard", "10.0.0.1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}

func TestSubmitMatch(t *testing.T) {
	router := newRecordsRouter(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing id", `{"players": [{"playerId": "a"}]}`, "Invalid match payload"},
		{"missing players", `{"matchId": "m1"}`, "Invalid match payload"},
		{"empty players", `{"matchId": "m1", "players": []}`, "Invalid players array"},
		{"no valid players", `{"matchId": "m1", "players": [{"name": "x"}]}`, "No valid players"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := request(router, http.MethodPost, "/matches", "10.0.0.1", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, errorBody(t, rec))
		})
	}

	rec := request(router, http.MethodPost, "/matches", "10.0.0.1",
		`{"matchId": "m1", "winnerId": "a", "duration": 120, "players": [{"playerId": "a", "kills": 3.7, "deaths": -2}, {"name": "ghost"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = request(router, http.MethodGet, "/matches", "10.0.0.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []records.MatchRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, []records.MatchPlayer{{PlayerID: "a", Name: "Player", Kills: 3, Deaths: 0}}, matches[0].Players)
}

func TestMatchesRateLimit(t *testing.T) {
	router := newRecordsRouter(t)
	body := `{"matchId": "m", "players": [{"playerId": "a"}]}`

	for i := 0; i < matchesLimit; i++ {
		require.Equal(t, http.StatusOK, request(router, http.MethodPost, "/matches", "10.0.0.9", body).Code)
	}
	rec := request(router, http.MethodPost, "/matches", "10.0.0.9", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many match submissions", errorBody(t, rec))
}

func TestBodyLimit(t *testing.T) {
	router := newRecordsRouter(t)
	body := `{"playerId": "p1", "name": "` + strings.Repeat("x", 20*1024) + `", "score": 1}`

	rec := request(router, http.MethodPost, "/leaderboard", "10.0.0.1", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthAndStats(t *testing.T) {
	h := newTestHub(t, testConfig())
	router := NewRouter(nil)
	require.NoError(t, NewHubController(h).Resolve(router))

	rec := request(router, http.MethodGet, "/health", "10.0.0.1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	do(t, h, newPeer("a"), "HOST_ROOM", map[string]any{"roomId": "R1", "peerId": "a"})
	do(t, h, newPeer("b"), "NOPE", nil)

	rec = request(router, http.MethodGet, "/stats", "10.0.0.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, Stats{Rooms: 1, Messages: 2, Rejected: 1}, stats)
}

func TestUnknownRouteRendersJSONError(t *testing.T) {
	router := newRecordsRouter(t)

	rec := request(router, http.MethodGet, "/nope", "10.0.0.1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", errorBody(t, rec))
}
