package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zendesk/clj-headlights/cmd/headlights/config"
	"github.com/zendesk/clj-headlights/internal/codec"
)

func TestReadInput_GzippedJSONL(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := codec.JSONLFormat{}.NewEncoder(zw)
	require.NoError(t, enc.Encode(codec.Record{Key: "p1", Value: "a"}))
	require.NoError(t, enc.Encode(codec.Record{Key: "p2", Value: "b"}))
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "records.jsonl.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	recs, err := readInput(context.Background(), config.InputConfig{Path: path})
	require.NoError(t, err)
	require.Equal(t, []codec.Record{{Key: "p1", Value: "a"}, {Key: "p2", Value: "b"}}, recs)
}

func TestReadInput_Missing(t *testing.T) {
	_, err := readInput(context.Background(), config.InputConfig{Path: filepath.Join(t.TempDir(), "nope.jsonl")})
	require.Error(t, err)
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	out := buf.String()

	require.Contains(t, out, "headlights dev")
	require.Contains(t, out, "schemes: az, file, ftp, gs, s3\n")
	require.Contains(t, out, "formats: cbor, jsonl\n")
	require.Contains(t, out, "modules: lines, strings\n")
}
