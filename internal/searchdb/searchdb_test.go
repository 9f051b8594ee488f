package searchdb

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func addSession(t *testing.T, w *Writer, id string, ts time.Time, messages ...string) {
	t.Helper()
	path := "/logs/" + id + ".jsonl"
	require.NoError(t, w.DeleteWhereSession(id))
	require.NoError(t, w.UpsertSession(SessionRow{
		ID: id, Source: "claude", CWD: "/work", Timestamp: ts,
		FilePath: path, Summary: "summary " + id, MessageCount: len(messages),
	}))
	for i, m := range messages {
		require.NoError(t, w.InsertMessage(MessageRow{SessionID: id, FilePath: path, Index: i, Role: "user", Content: m}))
	}
}

func TestOpenMigrateSetsVersion(t *testing.T) {
	db := newTestDB(t)
	v, err := db.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(SchemaVersion), v)
	assert.False(t, db.Rebuilt())
	assert.True(t, db.Created())

	missing, err := db.GetMeta("nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Migrate())
	w, err := db1.Writer()
	require.NoError(t, err)
	addSession(t, w, "s1", time.Now(), "hello world")
	require.NoError(t, w.Commit())
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()
	require.NoError(t, db2.Migrate())
	assert.False(t, db2.Rebuilt())
	assert.False(t, db2.Created())
	n, err := db2.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.SetMeta("schema_version", strconv.Itoa(SchemaVersion+1)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	err = db.Migrate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestMigrateRebuildsOlderSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "old", time.Now(), "stale content")
	require.NoError(t, w.Commit())
	require.NoError(t, db.SetMeta("schema_version", "1"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())
	assert.True(t, db.Rebuilt())
	n, err := db.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSingleWriter(t *testing.T) {
	db := newTestDB(t)
	w, err := db.Writer()
	require.NoError(t, err)

	_, err = db.Writer()
	assert.ErrorIs(t, err, ErrWriterBusy)

	require.NoError(t, w.Commit())
	assert.Error(t, w.Commit(), "second commit must fail")
	assert.NoError(t, w.Rollback(), "rollback after commit is a no-op")

	w2, err := db.Writer()
	require.NoError(t, err)
	require.NoError(t, w2.Rollback())
}

func TestCommitIsInvisibleUntilReload(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Reload())

	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "s1", time.Now(), "quantum entanglement notes")
	require.NoError(t, w.Commit())

	hits, err := db.Query(MatchExpr("quantum"), 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "pinned snapshot must not see the commit")

	require.NoError(t, db.Reload())
	hits, err = db.Query(MatchExpr("quantum"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SessionID)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := newTestDB(t)
	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "s1", time.Now(), "discard me")
	require.NoError(t, w.Rollback())
	require.NoError(t, db.Reload())

	n, err := db.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryDedupesPerSessionAndRanks(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "many", now, "nothing here", "deploy deploy deploy pipeline", "another deploy")
	addSession(t, w, "one", now, "we talked about the deploy once among many other unrelated words in a long sentence")
	addSession(t, w, "none", now, "unrelated")
	require.NoError(t, w.Commit())
	require.NoError(t, db.Reload())

	hits, err := db.Query(MatchExpr("deploy"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "many", hits[0].SessionID)
	assert.Equal(t, 1, hits[0].MessageIndex)
	assert.Equal(t, "one", hits[1].SessionID)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.LessOrEqual(t, hits[0].Score, 1.0)
	assert.Contains(t, hits[0].Snippet, "deploy")

	limited, err := db.Query(MatchExpr("deploy"), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestQueryPrefixAndStemming(t *testing.T) {
	db := newTestDB(t)
	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "s1", time.Now(), "Refactoring the authentication middleware")
	require.NoError(t, w.Commit())
	require.NoError(t, db.Reload())

	for _, q := range []string{"authent", "refactor", "REFACTORING middleware", "the auth"} {
		hits, err := db.Query(MatchExpr(q), 5)
		require.NoError(t, err, q)
		assert.Len(t, hits, 1, q)
	}
	hits, err := db.Query(MatchExpr("middleware zebra"), 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "all terms are required")
}

func TestDeleteWherePathIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	w, err := db.Writer()
	require.NoError(t, err)
	addSession(t, w, "s1", time.Now(), "alpha")
	require.NoError(t, w.DeleteWherePath("/logs/s1.jsonl"))
	require.NoError(t, w.DeleteWherePath("/logs/s1.jsonl"))
	require.NoError(t, w.Commit())
	require.NoError(t, db.Reload())

	_, err = db.Get("s1")
	assert.True(t, errors.Is(err, ErrNoRows))
	hits, err := db.Query(MatchExpr("alpha"), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRecentOrdersByTimestamp(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := db.Writer()
	require.NoError(t, err)
	for i := range 5 {
		addSession(t, w, fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Hour), "x")
	}
	require.NoError(t, w.Commit())
	require.NoError(t, db.Reload())

	rows, err := db.Recent(3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "s4", rows[0].ID)
	assert.Equal(t, "s2", rows[2].ID)
	assert.True(t, rows[0].Timestamp.Equal(base.Add(4*time.Hour)))

	got, err := db.GetMany([]string{"s1", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "/logs/s1.jsonl", got["s1"].FilePath)
}

func TestMatchExpr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"--- !!", ""},
		{"foo", `"foo"*`},
		{"foo bar", `"foo" AND "bar"*`},
		{`say "hi"`, `"say" AND """hi"""*`},
		{"a -- b", `"a" AND "b"*`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchExpr(tt.in), "input %q", tt.in)
	}
}

func TestQueryToleratesOddInput(t *testing.T) {
	db := newTestDB(t)
	for _, q := range []string{`"`, `a"b`, "NEAR(", "col:val", "*", "AND OR NOT"} {
		_, err := db.Query(MatchExpr(q), 5)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestMessageDeletesUseIndexes(t *testing.T) {
	db := newTestDB(t)
	for col, idx := range map[string]string{
		"file_path":  "idx_messages_file_path",
		"session_id": "idx_messages_session_id",
	} {
		rows, err := db.sql.Query("EXPLAIN QUERY PLAN DELETE FROM messages WHERE "+col+" = ?", "x")
		require.NoError(t, err)
		var plan []string
		for rows.Next() {
			var id, parent, unused int
			var detail string
			require.NoError(t, rows.Scan(&id, &parent, &unused, &detail))
			plan = append(plan, detail)
		}
		require.NoError(t, rows.Err())
		rows.Close()
		assert.Contains(t, fmt.Sprint(plan), idx, "delete by %s must not scan every message", col)
	}
}

func TestDeleteLeavesOtherSessionsSearchable(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	w, err := db.Writer()
	require.NoError(t, err)
	for i := range 200 {
		addSession(t, w, fmt.Sprintf("s%03d", i), now, "shared kubernetes rollout", fmt.Sprintf("marker%03d", i))
	}
	require.NoError(t, w.DeleteWherePath("/logs/s007.jsonl"))
	require.NoError(t, w.DeleteWhereSession("s150"))
	// Re-indexing replaces the old rows instead of duplicating them.
	addSession(t, w, "s010", now, "replacement text")
	require.NoError(t, w.Commit())
	require.NoError(t, db.Reload())

	for _, gone := range []string{"marker007", "marker150", "marker010"} {
		hits, err := db.Query(MatchExpr(gone), 5)
		require.NoError(t, err)
		assert.Empty(t, hits, gone)
	}
	hits, err := db.Query(MatchExpr("marker123"), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s123", hits[0].SessionID)
	assert.Equal(t, 1, hits[0].MessageIndex)

	hits, err = db.Query(MatchExpr("kubernetes"), 500)
	require.NoError(t, err)
	assert.Len(t, hits, 197)

	var ftsRows, msgRows int
	require.NoError(t, db.sql.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgRows))
	require.NoError(t, db.sql.QueryRow(`SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH '"kubernetes"'`).Scan(&ftsRows))
	assert.Equal(t, 197*2+1, msgRows)
	assert.Equal(t, 197, ftsRows)
}

func TestReindexCostStaysFlatAsIndexGrows(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	db := newTestDB(t)
	body := make([]string, 50)
	for i := range body {
		body[i] = fmt.Sprintf("message %d about build caching and flaky tests", i)
	}
	replaceBatch := func(prefix string, n int) time.Duration {
		w, err := db.Writer()
		require.NoError(t, err)
		start := time.Now()
		for i := range n {
			id := fmt.Sprintf("%s-%d", prefix, i)
			require.NoError(t, w.DeleteWherePath("/logs/"+id+".jsonl"))
			addSession(t, w, id, time.Now(), body...)
		}
		elapsed := time.Since(start)
		require.NoError(t, w.Commit())
		return elapsed
	}

	small := replaceBatch("first", 50)
	replaceBatch("bulk", 1000)
	large := replaceBatch("second", 50)

	// A full-table scan per delete makes the second batch ~20x slower.
	assert.Less(t, large, small*6+200*time.Millisecond, "small=%v large=%v", small, large)
}
