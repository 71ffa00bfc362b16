package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/pkg/wire"
)

func TestSplitChannels(t *testing.T) {
	require.Equal(t, []string{"index:ETH", "orders"}, splitChannels(" index:ETH, ,orders,"))
	require.Empty(t, splitChannels(" , "))
}

func TestToLineKeepsRawData(t *testing.T) {
	id := uint64(4)
	resp := wire.Response{Kind: wire.KindReply, ID: &id, Op: wire.OpCancelOrder, Data: json.RawMessage(`{"order_id":"0x1"}`)}

	raw, err := json.Marshal(toLine(resp))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"reply","id":4,"op":"cancel_order","data":{"order_id":"0x1"}}`, string(raw))
}

func TestRunPrintsIndexWithoutStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/index", r.URL.Path)
		require.Equal(t, "BTC", r.URL.Query().Get("asset"))
		_, _ = w.Write([]byte(`{"price":"64000.5","timestamp":"1"}`))
	}))
	defer srv.Close()

	t.Setenv("AEVO_REST_URL", srv.URL)
	t.Setenv("AEVO_LOG_LEVEL", "error")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, cancel, cliFlags{
		configPath: filepath.Join(t.TempDir(), "absent.yaml"),
		envFile:    filepath.Join(t.TempDir(), "absent.env"),
		index:      "BTC",
	}, &out)
	require.NoError(t, err)

	var printed map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	require.Equal(t, "BTC", printed["asset"])
	require.Equal(t, "64000.5", printed["price"])
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv("AEVO_ENV", "devnet")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := run(ctx, cancel, cliFlags{configPath: filepath.Join(t.TempDir(), "absent.yaml")}, &bytes.Buffer{})
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 2, exitCode(fmt.Errorf("build client: %w", errs.MissingCredentials("aevo.sign", "signing key"))))
	require.Equal(t, 1, exitCode(fmt.Errorf("stream: %w", errs.New("transport.run", errs.CodeExhausted))))
	require.Equal(t, 1, exitCode(errors.New("boom")))
}
