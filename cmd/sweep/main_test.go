package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func memoryEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STORAGE_DRIVER", "local")
	t.Setenv("STORAGE_PATH", t.TempDir())
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("AUTHORITY_URL", "")
	t.Setenv("SENTRY_DSN", "")
}

func TestRun_WritesReport(t *testing.T) {
	memoryEnv(t)
	out := filepath.Join(t.TempDir(), "report.xlsx")

	require.NoError(t, run([]string{"--date", "2024-03-20", "--report", out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	book, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer book.Close()
	assert.NotEmpty(t, data)
	assert.Contains(t, book.GetSheetList(), "Summary")
}

func TestRun_RejectsBadDate(t *testing.T) {
	memoryEnv(t)
	assert.Error(t, run([]string{"--date", "20/03/2024"}))
}

func TestRun_UnknownFlag(t *testing.T) {
	assert.Error(t, run([]string{"--frobnicate"}))
}
