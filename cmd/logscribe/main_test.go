package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/logscribe/internal/ingest"
)

var sample = []string{
	"not a log line",
	`192.168.1.1 - - [15/Jan/2024:10:31:00 +0000] "GET /missing HTTP/1.1" 404 0 "-" "curl/8.0"`,
	"2024-01-15 10:30:45,123 - WARNING - disk almost full",
}

func TestRunDetect(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDetect(&out, sample))
	assert.Equal(t, "apachelog\n", out.String())

	assert.Error(t, runDetect(&out, []string{"nothing", "here"}))
}

func TestWriteBatchText(t *testing.T) {
	batch := ingest.NewPipeline(nil).Parse(sample)
	var out bytes.Buffer
	require.NoError(t, writeBatch(&out, batch, "text"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ERROR   [Apache] GET /missing HTTP/1.1")
	assert.Contains(t, lines[1], "WARNING [Python] disk almost full")
	assert.Equal(t, "format=apachelog parsed=2 skipped=1", lines[2])
}

func TestWriteBatchJSON(t *testing.T) {
	batch := ingest.NewPipeline(nil).Parse(sample)
	var out bytes.Buffer
	require.NoError(t, writeBatch(&out, batch, "json"))

	dec := json.NewDecoder(&out)
	var first recordJSON
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, "2024-01-15T10:31:00Z", first.Timestamp)
	assert.Equal(t, "404", first.AdditionalFields["status"])

	var second recordJSON
	require.NoError(t, dec.Decode(&second))
	var summary summaryJSON
	require.NoError(t, dec.Decode(&summary))
	assert.Equal(t, summaryJSON{Format: "apachelog", Parsed: 2, Skipped: 1}, summary)
}

func TestWriteBatchRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, writeBatch(&bytes.Buffer{}, ingest.Batch{}, "yaml"))
}

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("LOGSCRIBE_CONFIG", t.TempDir()+"/nested/config.json")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Empty(t, cfg.AccessToken)

	_, _, err = remoteClient()
	assert.ErrorContains(t, err, "not logged in")

	cfg.AccessToken = "tok"
	require.NoError(t, saveConfig(cfg))
	again, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
