package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) doAuth(method, target, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestAuth_WriteRoutesRequireKey(t *testing.T) {
	const key = "perfkit-secret"

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
		wantMessage   string
	}{
		{"valid key", "Bearer " + key, http.StatusAccepted, ""},
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"no bearer prefix", key, http.StatusUnauthorized, "invalid authorization header format, expected 'Bearer <token>'"},
		{"lowercase prefix", "bearer " + key, http.StatusUnauthorized, "invalid authorization header format, expected 'Bearer <token>'"},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, "invalid api key"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "invalid api key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &Config{APIKey: key})

			rec := f.doAuth(http.MethodPost, "/v1/tables/users", `[{"name":"a"}]`, tt.authorization)
			require.Equal(t, tt.wantStatus, rec.Code)

			_, mounted := f.doc.Lookup("users")
			if tt.wantStatus != http.StatusAccepted {
				assert.False(t, mounted, "rejected writes must not mount a container")
				var got map[string]map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, errTypeAuthentication, got["error"]["type"])
				assert.Equal(t, tt.wantMessage, got["error"]["message"])
				return
			}
			assert.True(t, mounted)
		})
	}
}

func TestAuth_ProtectsEveryWriteRoute(t *testing.T) {
	f := newFixture(t, &Config{APIKey: "k"})

	for _, target := range []string{"/v1/tables/users", "/v1/charts/cpu", "/v1/sources/users/refresh"} {
		rec := f.doAuth(http.MethodPost, target, `[]`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
	assert.Empty(t, f.refresher.triggered)
}

func TestAuth_ReadRoutesStayOpen(t *testing.T) {
	f := newFixture(t, &Config{APIKey: "k"})
	f.doc.Mount("users")

	for _, target := range []string{"/health", "/v1/spans", "/v1/sources", "/surface/users", "/"} {
		rec := f.doAuth(http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}
}

func TestAuth_NoKeyAllowsWrites(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.doAuth(http.MethodPost, "/v1/sources/users/refresh", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"users"}, f.refresher.triggered)
}
