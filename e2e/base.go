package e2e

import (
	"bytes"
	"circles/auth"
	"circles/client"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenManager
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" || s.Config.JWTSecret == "" {
		s.T().Skip("E2E_SERVER_URL and E2E_JWT_SECRET are required for end to end tests")
	}
	s.tokens = auth.NewTokenManager(s.Config.JWTSecret, time.Hour)
}

// Token mints a bearer token for userID with the server secret.
func (s *BaseSuite) Token(userID int64) string {
	token, err := s.tokens.GenerateToken(userID)
	s.Require().NoError(err)
	return token
}

// API returns an HTTP client acting as userID, logging every call.
func (s *BaseSuite) API(name string, userID int64) *client.HTTPClient {
	header := fmt.Sprintf("  ====== %s (user %d) ======", name, userID)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	transport := &loggingTransport{t: s.T(), debugJSON: s.Config.DebugJSON, next: http.DefaultTransport}
	return client.NewHTTPClient(s.Config.ServerURL, s.Token(userID),
		client.WithHTTPClient(&http.Client{Timeout: 10 * time.Second, Transport: transport}))
}

// loggingTransport logs method, path, status and latency of each call.
type loggingTransport struct {
	t         *testing.T
	debugJSON bool
	next      http.RoundTripper
}

func (l *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var requestBody []byte
	if l.debugJSON && r.Body != nil {
		requestBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	start := time.Now()
	resp, err := l.next.RoundTrip(r)

	logBuilder := strings.Builder{}
	if err != nil {
		fmt.Fprintf(&logBuilder, "HTTP %s %s failed in %v: %v", r.Method, r.URL.Path, time.Since(start), err)
		l.t.Log(logBuilder.String())
		return resp, err
	}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", r.Method, r.URL.Path, resp.StatusCode, time.Since(start))
	if l.debugJSON {
		responseBody, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
		fmt.Fprintf(&logBuilder, "\nREQUEST: %s\nRESPONSE: %s", requestBody, responseBody)
	}
	l.t.Log(logBuilder.String())
	return resp, nil
}
