package license

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper implements http.RoundTripper for testing
type mockRoundTripper struct {
	statusCode int
	body       string
	err        error
}

func (m *mockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(strings.NewReader(m.body)),
	}, nil
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name            string
		statusCode      int
		body            string
		err             error
		wantDenied      bool
		wantUnavailable bool
		wantMaintenance bool
		wantDays        int
	}{
		{
			name:       "authorized",
			statusCode: 200,
			body:       `{"code":"true","msg":"ok","expiry":"2026-12-31","remainingDays":30}`,
			wantDays:   30,
		},
		{
			name:       "authorized upper case",
			statusCode: 200,
			body:       `{"code":"TRUE","msg":"ok"}`,
		},
		{
			name:       "denied",
			statusCode: 200,
			body:       `{"code":"false","msg":"expired"}`,
			wantDenied: true,
		},
		{
			name:            "malformed body",
			statusCode:      200,
			body:            `<html>`,
			wantUnavailable: true,
		},
		{
			name:            "maintenance",
			statusCode:      503,
			body:            `down`,
			wantUnavailable: true,
			wantMaintenance: true,
		},
		{
			name:            "server error",
			statusCode:      500,
			body:            `oops`,
			wantUnavailable: true,
		},
		{
			name:            "not found",
			statusCode:      404,
			wantUnavailable: true,
		},
		{
			name:            "network failure",
			err:             errors.New("connection refused"),
			wantUnavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: &mockRoundTripper{statusCode: tt.statusCode, body: tt.body, err: tt.err}}
			resp, err := NewHTTPChecker(client, "http://license.test/api/v1/app/key").Check(context.Background())

			switch {
			case tt.wantDenied:
				var denied *DeniedError
				require.ErrorAs(t, err, &denied)
				assert.Equal(t, "expired", denied.Msg)
				assert.Nil(t, resp)
			case tt.wantUnavailable:
				var unavailable *UnavailableError
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, tt.wantMaintenance, unavailable.Maintenance())
				assert.Nil(t, resp)
			default:
				require.NoError(t, err)
				assert.True(t, resp.Authorized())
				if tt.wantDays != 0 {
					require.NotNil(t, resp.RemainingDays)
					assert.Equal(t, tt.wantDays, *resp.RemainingDays)
				}
			}
		})
	}
}

func TestCheckAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/app/key", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"true","msg":"welcome"}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPChecker(nil, srv.URL+"/api/v1/app/key").Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "welcome", resp.Msg)
}

func TestCheckNoURL(t *testing.T) {
	_, err := NewHTTPChecker(nil, "").Check(context.Background())
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
}
