package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/molsim/internal/sessionstore"
	"github.com/askiada/molsim/pkg/artifact"
	"github.com/askiada/molsim/pkg/orchestrator/httpapi"
	"github.com/askiada/molsim/pkg/orchestrator/notify"
	"github.com/askiada/molsim/pkg/wire"
	"github.com/askiada/molsim/pkg/workflow"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *httpapi.Client) {
	t.Helper()

	s := New(Config{}, sessionstore.NewMemory(), artifact.New(afero.NewMemMapFs(), "/artifacts"), WithLogger(zerolog.Nop()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	client, err := httpapi.New(httpapi.Config{BaseURL: ts.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	return s, ts, client
}

func TestSessionAPI(t *testing.T) {
	t.Parallel()

	_, _, client := newTestServer(t)
	ctx := context.Background()

	id, err := client.Start(ctx, "vde", "a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, client.Upsert(ctx, id, wire.Outputs{
		workflow.EnterEmailWidgetID: {workflow.EmailPipe: {Type: "inline", Value: "a@b.com"}},
		"load":                      {"prep.pdb": {Type: "url", Value: "/artifacts/s/x.pdb"}},
	}))

	snap, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, "vde", snap.AppID)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Equal(t, wire.PipeData{Type: "url", Value: "/artifacts/s/x.pdb"}, snap.Widgets["load"].Out["prep.pdb"])
}

func TestSessionAPIErrors(t *testing.T) {
	t.Parallel()

	_, ts, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	var statusErr *httpapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "session not found")

	_, err = client.Start(ctx, "vde", "not an email")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)

	tcs := map[string]struct {
		path   string
		body   string
		status int
	}{
		"invalid json":   {path: "/session/start/vde", body: "{", status: http.StatusBadRequest},
		"unknown status": {path: "/session/status/x", body: `{"run": "paused"}`, status: http.StatusBadRequest},
		"missing upsert": {path: "/session/outputs/x", body: `{}`, status: http.StatusNotFound},
	}
	for name, tc := range tcs {
		resp, err := http.Post(ts.URL+tc.path, "application/json", strings.NewReader(tc.body))
		require.NoError(t, err, name)
		var body wire.ErrorBody
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, name)
		require.NoError(t, sonic.Unmarshal(data, &body), name)
		assert.NotEmpty(t, body.Error, name)
	}
}

func TestPushChannel(t *testing.T) {
	t.Parallel()

	s, ts, client := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := client.Start(ctx, "vde", "a@b.com")
	require.NoError(t, err)

	ws := notify.NewWebSocket("ws"+strings.TrimPrefix(ts.URL, "http")+"/session/ws", zerolog.Nop())
	ch, err := ws.Subscribe(ctx, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Hub().Subscribers(id) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Upsert(ctx, id, wire.Outputs{"load": {"jobId": {Type: "inline", Value: "j1"}}}))
	select {
	case n := <-ch:
		assert.Equal(t, wire.NewNotification(wire.MethodSessionUpdate, id), n)
	case <-ctx.Done():
		require.FailNow(t, "no notification after upsert")
	}

	resp, err := http.Post(ts.URL+"/session/status/"+id, "application/json", strings.NewReader(`{"load": "completed"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case <-ch:
	case <-ctx.Done():
		require.FailNow(t, "no notification after status change")
	}

	snap, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]workflow.Status{"load": workflow.StatusCompleted}, snap.Statuses())

	s.Hub().Close()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-ctx.Done():
		require.FailNow(t, "push channel not closed")
	}
}

func TestArtifacts(t *testing.T) {
	t.Parallel()

	_, ts, client := newTestServer(t)

	upload := func(body, query string) wire.ArtifactResponse {
		t.Helper()

		resp, err := http.Post(ts.URL+"/artifacts/s1"+query, "application/octet-stream", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var res wire.ArtifactResponse
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, sonic.Unmarshal(data, &res))

		return res
	}

	first := upload("HEADER    TRANSFERASE", "")
	assert.Equal(t, "/artifacts/s1/"+first.Filename, first.URL)
	assert.True(t, strings.HasSuffix(first.Filename, ".pdb"))
	assert.Equal(t, first, upload("HEADER    TRANSFERASE", ""), "same content, same file")

	other := upload(`{"ligands": ["MOL"]}`, "?filename=prep.json")
	assert.True(t, strings.HasSuffix(other.Filename, ".json"))

	data, err := client.Fetch(context.Background(), first.URL)
	require.NoError(t, err)
	assert.Equal(t, "HEADER    TRANSFERASE", string(data))

	_, err = client.Fetch(context.Background(), "/artifacts/s1/missing.pdb")
	var statusErr *httpapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = client.Fetch(context.Background(), "/artifacts/tmp/x.pdb")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeShutdown(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{ShutdownTimeout: time.Second}, sessionstore.NewMemory(), artifact.New(afero.NewMemMapFs(), "/"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		require.FailNow(t, "server did not stop")
	}
}
