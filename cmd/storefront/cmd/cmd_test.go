package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/api"
	"github.com/jmcleod/storefront/internal/util"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()
	a := api.New(
		api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		api.WithPasswordParams(util.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}),
	)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func register(t *testing.T, srv *httptest.Server, username, password string) {
	t.Helper()
	body := `{"username":"` + username + `","password":"` + password + `"}`
	resp, err := http.Post(srv.URL+"/api/v1/auth/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// run executes the root command with the shared connection flags prepended.
// Command-local flag variables are reset because cobra keeps them between
// executions in one process.
func run(t *testing.T, srv *httptest.Server, dir string, args ...string) (string, error) {
	t.Helper()
	loginUsername, loginPassword = "", ""
	loginAccessToken, loginRefreshToken = "", ""
	requestData, requestHeaders, requestVerbose = "", nil, false
	sealSecret, alertWebhook = "", ""

	base := []string{
		"--base-url", srv.URL + "/api/v1",
		"--store", "bbolt",
		"--data-dir", dir,
		"--profile", "test",
		"--log-level", "error",
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, base...))
	err := rootCmd.Execute()
	return out.String(), err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSessionLifecycle(t *testing.T) {
	srv := startAPI(t)
	dir := t.TempDir()
	register(t, srv, "carol", "correct horse")

	out, err := run(t, srv, dir, "login", "--username", "carol", "--password", "correct horse")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in.")

	out, err = run(t, srv, dir, "token")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	assert.NotEmpty(t, token)

	out, err = run(t, srv, dir, "request", "GET", "/me")
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "carol"`)

	out, err = run(t, srv, dir, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	_, err = run(t, srv, dir, "token")
	assert.ErrorIs(t, err, errNotLoggedIn)

	// The revoked token no longer works against the backend.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_BadPassword(t *testing.T) {
	srv := startAPI(t)
	dir := t.TempDir()
	register(t, srv, "carol", "correct horse")

	_, err := run(t, srv, dir, "login", "--username", "carol", "--password", "wrong password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username or password")

	_, err = run(t, srv, dir, "token")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLogin_ImportTokens(t *testing.T) {
	srv := startAPI(t)
	dir := t.TempDir()

	_, err := run(t, srv, dir, "login", "--access-token", "A1", "--refresh-token", "R1")
	require.NoError(t, err)

	out, err := run(t, srv, dir, "token")
	require.NoError(t, err)
	assert.Equal(t, "A1", strings.TrimSpace(out))
}

func TestRequest_RejectedRefreshPurgesSession(t *testing.T) {
	srv := startAPI(t)
	dir := t.TempDir()

	_, err := run(t, srv, dir, "login", "--access-token", "bogus-access", "--refresh-token", "bogus-refresh")
	require.NoError(t, err)

	_, err = run(t, srv, dir, "request", "GET", "/products")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storefront login")

	_, err = run(t, srv, dir, "token")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRequest_InvalidData(t *testing.T) {
	srv := startAPI(t)
	_, err := run(t, srv, t.TempDir(), "request", "POST", "/products", "--data", "{not json")
	assert.EqualError(t, err, "--data must be valid JSON")
}

func TestSealedStoreRoundTrip(t *testing.T) {
	srv := startAPI(t)
	dir := t.TempDir()

	_, err := run(t, srv, dir, "login", "--access-token", "A1", "--refresh-token", "R1", "--seal-secret", "s3cret")
	require.NoError(t, err)

	out, err := run(t, srv, dir, "token", "--seal-secret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "A1", strings.TrimSpace(out))
}

func TestVersion(t *testing.T) {
	srv := startAPI(t)
	out, err := run(t, srv, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "storefront "+Version+"\n", out)
}

func TestOpenStore_Unknown(t *testing.T) {
	storeKind = "etcd"
	t.Cleanup(func() { storeKind = "bbolt" })
	_, _, err := openStore(t.Context())
	assert.EqualError(t, err, `unknown --store "etcd"`)
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"X-Trace: abc", "Accept:application/json"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Trace": "abc", "Accept": "application/json"}, h)

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
}

func TestParsePrefixes(t *testing.T) {
	got, err := parsePrefixes([]string{"10.0.0.0/8", "192.168.1.7", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)

	_, err = parsePrefixes([]string{"nonsense"})
	assert.Error(t, err)
}
