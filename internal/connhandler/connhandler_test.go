package connhandler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groove-net/ignis/internal/connhandler"
	"github.com/groove-net/ignis/internal/httpparse"
	"github.com/groove-net/ignis/internal/logging"
	"github.com/groove-net/ignis/internal/middleware"
)

func TestNew_BuildsHandlerAroundRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html/>"), 0o644))

	log := logging.New(os.Stderr, logging.LevelErr)
	router := middleware.NewRouter(dir, "index.html", log)
	h := connhandler.New(router, log)

	require.NotNil(t, h)
	require.Same(t, router, h.Router)
}

func TestRequestKeepAliveDrivesLoopContinuation(t *testing.T) {
	req := &httpparse.Request{Version: "HTTP/1.1", Header: httpparse.Header{}}
	require.True(t, req.KeepAlive())

	req.Header = httpparse.Header{"connection": {"close"}}
	require.False(t, req.KeepAlive())
}
