package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>one</title><link>https://example.com/1</link></item>
<item><title>two</title><link>https://example.com/2</link></item>
</channel></rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_GetJSON(t *testing.T) {
	srv := feedServer(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"get", srv.URL, "--size", "5"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var items []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0]["title"])
}

func TestRun_GetYAML(t *testing.T) {
	srv := feedServer(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"get", srv.URL, "-n", "1", "-o", "yaml"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var items []map[string]any
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/1", items[0]["link"])
}

func TestRun_GetErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	ctx := context.Background()

	err := run(ctx, []string{"get", "not-a-url"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_url")

	err = run(ctx, []string{"get", "https://example.com", "--size", "7"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid size")

	err = run(ctx, []string{"get"}, &stdout, &stderr)
	assert.Error(t, err)
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Error(t, run(context.Background(), []string{"launch"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	require.NoError(t, run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "feedpreview serve")
}

func TestWriteItems_UnknownFormat(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, writeItems(&out, nil, "xml"))
}
