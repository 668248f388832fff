package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	r := New(path)

	r.Step("abc1234567", "upload.parsed", map[string]any{"rows": 3})
	r.Step("abc1234567", "match_selection.manual", map[string]any{"suggestions": 2})
	r.Step("ffff000000", "request", nil)

	events, err := Tail(path, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "upload.parsed", events[0].Step)
	require.NotEmpty(t, events[0].Timestamp)

	filtered, err := Tail(path, 10, "abc1234567")
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	last, err := Tail(path, 1, "")
	require.NoError(t, err)
	require.Len(t, last, 1)
	require.Equal(t, "request", last[0].Step)
}

func TestTailSkipsBrokenLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	content := `{"rid":"a","step":"one"}` + "\n\nnot json\n" + `{"rid":"b","step":"two"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	events, err := Tail(path, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestClipOversizedValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	r := New(path)
	r.maxChars = 50

	r.Step("abc1234567", "big", map[string]any{"blob": strings.Repeat("x", 500)})

	events, err := Tail(path, 1, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	blob, ok := events[0].Data["blob"].(string)
	require.True(t, ok)
	require.True(t, strings.HasSuffix(blob, clipSentinel))
	require.Less(t, len(blob), 500)
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	r := &Recorder{path: path, enabled: false, maxChars: defaultMaxChars}
	r.Step("abc1234567", "ignored", nil)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestNewRIDFormat(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rid := NewRID()
		require.Len(t, rid, 10)
		require.NotContains(t, rid, " ")
		seen[rid] = true
	}
	require.Greater(t, len(seen), 1)
}
