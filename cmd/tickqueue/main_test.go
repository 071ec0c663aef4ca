package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RezaEskandarii/tickqueue/app"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/RezaEskandarii/tickqueue/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_EnqueueTickStatus(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "migrate")
	require.NoError(t, err)

	out, err := run(t, "enqueue", "invoice-render", `{"invoiceId":"inv-1","clientId":"c-1"}`, "--priority", "2")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, "stats")
	require.NoError(t, err)
	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats["pending"])

	out, err = run(t, "tick", "--max-jobs", "3")
	require.NoError(t, err)
	var res types.TickResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{id}, res.JobIDs)

	out, err = run(t, "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"completed"`)

	_, err = run(t, "cancel", id)
	assert.Error(t, err)
}

func TestCLI_EnqueueRejectsUnknownType(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "enqueue", "send_fax", `{}`)
	assert.Error(t, err)
}

func TestCLI_EnqueueViaQueueNeedsBroker(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "enqueue", "invoice-render", `{"invoiceId":"inv-1","clientId":"c-1"}`, "--via-queue")
	assert.ErrorContains(t, err, "queue writer is not configured")
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg, err := config.NewConfig(
		config.WithStorage(config.Memory, ""),
		config.WithHTTPAddr("127.0.0.1:0"),
		config.WithTickSchedule("@every 1h"),
	)
	require.NoError(t, err)

	c, err := app.NewContainer(context.Background(), cfg, app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, c) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
