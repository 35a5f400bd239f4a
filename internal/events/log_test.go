package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleknir/webrecorder/api/schemas"
)

func TestWriteAndReadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.json")

	in := []schemas.NetworkEvent{
		{
			Method:         "POST",
			URL:            "https://trello.com/1/cards",
			RequestHeaders: map[string]string{"content-type": "application/json"},
			Status:         200,
			PostData:       `{"name":"card"}`,
		},
		{
			Method:           "POST",
			URL:              "https://trello.com/1/upload",
			Status:           201,
			PostDataBase64:   "AACA/w==",
			PostDataIsBinary: true,
		},
	}

	require.NoError(t, WriteLog(path, in))

	out, err := ReadLog(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWriteLogOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	require.NoError(t, WriteLog(path, []schemas.NetworkEvent{ev("GET", "https://a.example/x")}))
	require.NoError(t, WriteLog(path, []schemas.NetworkEvent{ev("GET", "https://b.example/y")}))

	out, err := ReadLog(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "https://b.example/y", out[0].URL)

	// No temp residue left behind.
	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadLogErrors(t *testing.T) {
	_, err := ReadLog(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = ReadLog(bad)
	assert.Error(t, err)
}
