package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagefeed/internal/feed"
	"github.com/roach88/pagefeed/internal/store"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// decode unmarshals the data payload of a JSON CLI response into v.
func decode(t *testing.T, output string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), output)
	require.Equal(t, "ok", resp.Status, output)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func appendEntity(t *testing.T, db, id, ts, data string) {
	t.Helper()
	_, err := execute(t, context.Background(), "append", "--db", db, "--id", id, "--timestamp", ts, "--data", data)
	require.NoError(t, err)
}

func TestAppend_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")

	out, err := execute(t, context.Background(),
		"append", "--db", db, "--id", "order-1", "--data", `{"n":1}`,
		"--timestamp", "2024-03-01T12:00:00.123456Z", "--format", "json")
	require.NoError(t, err)

	var result AppendResult
	decode(t, out, &result)
	assert.Equal(t, "order-1", result.ContentID)
	assert.Equal(t, int64(7), result.ContentLength)
	assert.Equal(t, "application/json", result.ContentType)
	assert.True(t, result.LastModified.Equal(time.Date(2024, 3, 1, 12, 0, 0, 123000000, time.UTC)))
	assert.Empty(t, result.PageID)
}

func TestAppend_FromStdin(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader("hello world"))
	cmd.SetArgs([]string{"append", "--db", db, "--id", "greeting", "--file", "-", "--type", "text/plain"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ Appended greeting (11 bytes")
}

func TestAppend_MissingID(t *testing.T) {
	_, err := execute(t, context.Background(), "append", "--db", filepath.Join(t.TempDir(), "feed.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestAppend_BadTimestamp(t *testing.T) {
	_, err := execute(t, context.Background(),
		"append", "--db", filepath.Join(t.TempDir(), "feed.db"), "--id", "x", "--timestamp", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAssign_AndInspect(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "feed.db")

	appendEntity(t, db, "a", "2024-03-01T12:00:00Z", "aaaa")
	appendEntity(t, db, "b", "2024-03-01T12:00:01Z", "bbbb")
	appendEntity(t, db, "c", "2024-03-01T12:00:02Z", "cccc")

	out, err := execute(t, ctx, "assign", "--db", db, "--max-bytes", "8", "--format", "json")
	require.NoError(t, err)

	var assigned AssignResult
	decode(t, out, &assigned)
	assert.Equal(t, 3, assigned.Assigned)
	assert.Equal(t, 0, assigned.Pending)
	assert.Equal(t, int64(1), assigned.Generation)
	assert.NotEmpty(t, assigned.LatestPage)

	out, err = execute(t, ctx, "pages", "--db", db, "--entities", "--format", "json")
	require.NoError(t, err)

	var pages PagesResult
	decode(t, out, &pages)
	assert.True(t, pages.Ordered)
	require.Len(t, pages.Pages, 2)
	assert.Equal(t, []string{"a", "b"}, pages.Pages[0].Entities)
	assert.Equal(t, []string{"c"}, pages.Pages[1].Entities)
	assert.Equal(t, assigned.LatestPage, pages.Pages[1].PageID)

	out, err = execute(t, ctx, "verify", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Chain valid (2 pages)")

	out, err = execute(t, ctx, "journal", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No pending commit")
}

func TestAssign_UsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "feed.db")
	cfgPath := filepath.Join(dir, "pagefeed.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\nproducer:\n  max_entities_per_page: 1\n"), 0644))

	appendEntity(t, db, "a", "2024-03-01T12:00:00Z", "x")
	appendEntity(t, db, "b", "2024-03-01T12:00:01Z", "y")

	_, err := execute(t, context.Background(), "assign", "--config", cfgPath)
	require.NoError(t, err)

	out, err := execute(t, context.Background(), "pages", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)
	var pages PagesResult
	decode(t, out, &pages)
	assert.Len(t, pages.Pages, 2)
}

func TestAssign_InvalidOverride(t *testing.T) {
	_, err := execute(t, context.Background(),
		"assign", "--db", filepath.Join(t.TempDir(), "feed.db"), "--max-run", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAssign_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pagefeed.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("producer:\n  max_bytes_per_page: -1\n"), 0644))

	out, err := execute(t, context.Background(), "assign", "--config", cfgPath, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestAssign_Loop(t *testing.T) {
	db := filepath.Join(t.TempDir(), "feed.db")
	appendEntity(t, db, "a", "2024-03-01T12:00:00Z", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, err := execute(t, ctx, "assign", "--db", db, "--loop", "--interval", "20ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Producer started")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.CountUnassigned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVerify_ReportsPendingRecovery(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "feed.db")

	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx,
		feed.PageMetadata{PageID: "L", LastModified: time.UnixMilli(1).UTC(), Generation: 1},
		feed.PageMetadata{PageID: "N", Prev: "L", LastModified: time.UnixMilli(2).UTC(), Generation: 2},
	))
	require.NoError(t, st.SaveJournal(ctx, feed.JournalState{NewPages: []string{}, NewLatestPage: "N", PreviousLatestPage: "L"}))
	require.NoError(t, st.Close())

	out, err := execute(t, ctx, "verify", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result VerifyResult
	decode(t, out, &result)
	assert.False(t, result.Valid)

	codes := []feed.ViolationCode{}
	for _, v := range result.Violations {
		codes = append(codes, v.Code)
	}
	assert.Contains(t, codes, feed.ViolationMultipleLatest)
	assert.Contains(t, codes, feed.ViolationPendingRecovery)

	out, err = execute(t, ctx, "journal", "--db", db, "--format", "json")
	require.NoError(t, err)
	var journal JournalResult
	decode(t, out, &journal)
	assert.True(t, journal.Pending)
	require.NotNil(t, journal.Journal)
	assert.Equal(t, "L", journal.Journal.PreviousLatestPage)

	// The next assign run recovers
	_, err = execute(t, ctx, "assign", "--db", db)
	require.NoError(t, err)
	out, err = execute(t, ctx, "verify", "--db", db)
	require.NoError(t, err, out)
}
