package persist

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exp/sessioncoordinator/internal/session"
)

func newTestTable(t *testing.T, n int) *session.Table {
	t.Helper()
	table := session.NewTable(n)
	for i := 0; i < n; i++ {
		_, err := table.Allocate(session.NewConnection(nil))
		require.NoError(t, err)
	}
	return table
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// TestDumpParamsFailsFastOnUnwritableDir exercises §9's Open Question: an
// unwritable output directory is a fatal StateError at session start. A
// path component that is a regular file, not a directory, fails MkdirAll
// regardless of the test runner's privileges.
func TestDumpParamsFailsFastOnUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := New(filepath.Join(blocker, "sessions"), "s1")
	err := w.DumpParams(map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestFlushRoundWritesOneRowPerSeat(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "s1")

	table := newTestTable(t, 2)
	table.Lookup(0).Name = "alice"
	table.Lookup(0).Earnings = decimal.NewFromFloat(0.05)
	table.Lookup(1).Name = "bob"
	table.Lookup(1).Earnings = decimal.NewFromFloat(0.07)

	require.NoError(t, w.FlushRound(1, 1, table))

	rows := readCSV(t, filepath.Join(dir, "s1-status.csv"))
	require.Len(t, rows, 3) // header + 2 seats
	assert.Equal(t, []string{"Seat", "Name", "Status", "Earnings"}, rows[0])
}

// TestHistoryRewriteOnNewHeader exercises §8 seed test 6: introducing a
// new column mid-session rotates the prior file to .backup and rewrites
// with all prior rows present, leaving the new column empty for rows that
// predate it.
func TestHistoryRewriteOnNewHeader(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "s1")

	row1 := HistoryRow{Match: 1, Round: 1, Seat: 0, Fields: map[string]string{"xOne": "1", "xTwo": "2"}}
	require.NoError(t, w.AppendHistory(row1))

	historyPath := filepath.Join(dir, "s1-history.csv")
	rowsBefore := readCSV(t, historyPath)
	require.Len(t, rowsBefore, 2) // header + 1 row

	row2 := HistoryRow{Match: 2, Round: 1, Seat: 0, Fields: map[string]string{"xOne": "3", "xTwo": "4", "xThree": "5"}}
	require.NoError(t, w.AppendHistory(row2))

	_, err := os.Stat(historyPath + ".backup")
	require.NoError(t, err, "prior history file must be rotated to .backup")

	rowsAfter := readCSV(t, historyPath)
	require.Len(t, rowsAfter, 3) // header + 2 rows
	header := rowsAfter[0]
	assert.Contains(t, header, "xThree")

	// row1 predates xThree: its value in that column is empty.
	xThreeIdx := indexOf(header, "xThree")
	assert.Equal(t, "", rowsAfter[1][xThreeIdx])
	assert.Equal(t, "5", rowsAfter[2][xThreeIdx])
}

// TestFlushRoundAccumulatesHistoryAcrossRounds exercises the review fix:
// FlushRound's per-seat AppendHistory calls must not duplicate rows when
// the first seat's flush grows the header, and a header growth in a later
// round must not lose rows written in earlier rounds.
func TestFlushRoundAccumulatesHistoryAcrossRounds(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "s1")

	table := newTestTable(t, 2)
	table.Each(func(i int, s *session.ClientSession) {
		s.Scratch["dollars"] = 10
	})
	require.NoError(t, w.FlushRound(1, 1, table))

	historyPath := filepath.Join(dir, "s1-history.csv")
	rows := readCSV(t, historyPath)
	require.Len(t, rows, 3) // header + 2 seats, no duplicates

	// Round 2 introduces a new scratch column, forcing a header-growth
	// rewrite on the first seat's append.
	table.Each(func(i int, s *session.ClientSession) {
		s.Scratch["dollars"] = 20
		s.Scratch["chips_blue"] = 3
	})
	require.NoError(t, w.FlushRound(1, 2, table))

	rows = readCSV(t, historyPath)
	// header + round 1's 2 rows + round 2's 2 rows, still no duplicates,
	// and round 1's rows must still be present.
	require.Len(t, rows, 5)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestAppendChatCreatesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "s1")

	require.NoError(t, w.AppendChat(0, "alice", "hi"))
	require.NoError(t, w.AppendChat(1, "bob", "hello"))

	rows := readCSV(t, filepath.Join(dir, "s1-chat.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Seat", "Name", "Text"}, rows[0])
}
