package probes

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockInspector struct {
	mock.Mock
}

func (m *MockInspector) Inspect(ctx context.Context, idOrName string) (*docker.ContainerInfo, error) {
	args := m.Called(ctx, idOrName)
	info, _ := args.Get(0).(*docker.ContainerInfo)
	return info, args.Error(1)
}

func serverTarget(t *testing.T, server *httptest.Server, path string) Target {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Target{Scheme: u.Scheme, Host: host, Port: port, Path: path}
}

func TestHTTPProber_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/":
			http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	tests := []struct {
		name        string
		path        string
		wantSuccess bool
	}{
		{"Successful HTTP Check", "/health", true},
		{"Redirect counts as healthy", "/", true},
		{"Error HTTP Check", "/fail", false},
		{"Not Found HTTP Check", "/notfound", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := (&HTTPProber{}).Execute(&ProbeContext{
				Ctx:        context.Background(),
				Logger:     log.NewTestLogger(),
				Target:     serverTarget(t, server, tt.path),
				HTTPClient: NewHTTPClient(time.Second, false),
			})
			assert.Equal(t, tt.wantSuccess, res.Success, res.Message)
		})
	}
}

func TestHTTPProberTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	res := (&HTTPProber{}).Execute(&ProbeContext{
		Ctx:        context.Background(),
		Target:     serverTarget(t, server, "/"),
		HTTPClient: NewHTTPClient(50*time.Millisecond, false),
	})
	assert.False(t, res.Success)
}

func TestHTTPProberInsecureTLS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	target := serverTarget(t, server, "/")

	strict := (&HTTPProber{}).Execute(&ProbeContext{Ctx: context.Background(), Target: target, HTTPClient: NewHTTPClient(time.Second, false)})
	assert.False(t, strict.Success, "self-signed certificate rejected by default")

	insecure := (&HTTPProber{}).Execute(&ProbeContext{Ctx: context.Background(), Target: target, HTTPClient: NewHTTPClient(time.Second, true)})
	assert.True(t, insecure.Success, insecure.Message)
}

func TestTCPProber_Execute(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	ok := (&TCPProber{}).Execute(&ProbeContext{Ctx: context.Background(), Target: Target{Host: "127.0.0.1", Port: port}})
	assert.True(t, ok.Success, ok.Message)

	require.NoError(t, ln.Close())
	closed := (&TCPProber{}).Execute(&ProbeContext{Ctx: context.Background(), Target: Target{Host: "127.0.0.1", Port: port}})
	assert.False(t, closed.Success)
}

func TestContainerProber(t *testing.T) {
	inspector := new(MockInspector)
	inspector.On("Inspect", mock.Anything, "abc123").Return(&docker.ContainerInfo{ID: "abc123", Name: "portainer", Running: true}, nil)
	inspector.On("Inspect", mock.Anything, "def456").Return(&docker.ContainerInfo{ID: "def456", Name: "old", Status: "exited"}, nil)
	inspector.On("Inspect", mock.Anything, "gone").Return(nil, fmt.Errorf("%w: gone", types.ErrServiceNotFound))

	p := NewContainerProber(inspector)
	run := func(id string) ProbeResult {
		return p.Execute(&ProbeContext{Ctx: context.Background(), Target: Target{Container: id}})
	}

	assert.True(t, run("abc123").Success)
	res := run("def456")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "exited")
	assert.False(t, run("gone").Success)
	assert.False(t, run("").Success)
	inspector.AssertExpectations(t)
}
