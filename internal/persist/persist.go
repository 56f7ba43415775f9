// Package persist implements C6: the durable per-round history, market
// log, status snapshot, and chat transcript, all CSV with a stable header
// row, plus the session-parameters dump as JSON. The history and status
// files rotate the previous file to a single-generation ".backup" before
// any rewrite (§3 invariant 7, §4.6).
//
// The dynamic-header rewrite-on-new-column discipline is grounded on
// brennhill-gasoline-mcp-ai-devtools's output.CSVFormatter (collects the
// union of row keys, sorts them for determinism, and writes a header then
// rows) — the pack's only CSV-writing example — generalized here from a
// one-shot formatter to an append/rewrite file store. No pack dependency
// specializes in a CSV writer or ORM-style repository with dynamic
// columns, so this component is deliberately built on encoding/csv
// (stdlib) rather than forcing pgx/goose (the teacher's relational stack,
// which models a fixed, migration-driven MMO schema with no analogue to
// a dynamically-widening per-session row).
package persist

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/exp/sessioncoordinator/internal/session"
)

// Writer owns the output directory for one session and implements
// driver.Persister.
type Writer struct {
	dir       string
	sessionID string

	mu          sync.Mutex
	historyCols []string     // accumulated dynamic header, in first-seen order
	historyRows []HistoryRow // every row appended so far, for header-growth rewrites
}

// New constructs a Writer rooted at dir for the given sessionID. It does
// not touch the filesystem; call DumpParams first to verify writability
// (§9: unwritable output directory is a fatal StateError at session
// start).
func New(dir, sessionID string) *Writer {
	return &Writer{dir: dir, sessionID: sessionID}
}

func (w *Writer) path(suffix string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.csv", w.sessionID, suffix))
}

// DumpParams writes the session parameters verbatim as JSON at session
// start, proving the output directory is writable (§4.6, §9).
func (w *Writer) DumpParams(params map[string]any) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("persist: create output dir: %w", err)
	}
	b, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal params: %w", err)
	}
	p := filepath.Join(w.dir, fmt.Sprintf("%s-params.json", w.sessionID))
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("persist: write params: %w", err)
	}
	return nil
}

// rotateBackup renames path to path+".backup", overwriting any previous
// backup (§3 invariant 7: single-generation backup).
func rotateBackup(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Rename(path, path+".backup")
}

// HistoryRow is one (match, round, seat) row with controller-defined
// columns.
type HistoryRow struct {
	Match, Round, Seat int
	Fields             map[string]string
}

// AppendHistory appends row, rewriting the whole file (after a backup
// rotation) if row introduces a column the header has not seen before.
// The Writer keeps every row it has ever been given so that a header-growth
// rewrite can reproduce all prior rounds, not just the one being flushed.
func (w *Writer) AppendHistory(row HistoryRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	grew := false
	for k := range row.Fields {
		if !contains(w.historyCols, k) {
			w.historyCols = append(w.historyCols, k)
			grew = true
		}
	}
	w.historyRows = append(w.historyRows, row)

	path := w.path("history")
	if grew {
		if err := rotateBackup(path); err != nil {
			return fmt.Errorf("persist: rotate history backup: %w", err)
		}
		return w.rewriteHistory(path, w.historyRows)
	}
	return w.appendHistoryRow(path, row)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func (w *Writer) header() []string {
	cols := []string{"Match", "Round", "Seat"}
	sorted := append([]string(nil), w.historyCols...)
	sort.Strings(sorted)
	return append(cols, sorted...)
}

func (w *Writer) rowValues(row HistoryRow) []string {
	out := []string{strconv.Itoa(row.Match), strconv.Itoa(row.Round), strconv.Itoa(row.Seat)}
	sorted := append([]string(nil), w.historyCols...)
	sort.Strings(sorted)
	for _, c := range sorted {
		out = append(out, row.Fields[c]) // zero value "" for columns this row predates
	}
	return out
}

func (w *Writer) rewriteHistory(path string, allRows []HistoryRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create history file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(w.header()); err != nil {
		return err
	}
	for _, r := range allRows {
		if err := cw.Write(w.rowValues(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) appendHistoryRow(path string, row HistoryRow) error {
	needHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needHeader = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persist: open history file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needHeader {
		if err := cw.Write(w.header()); err != nil {
			return err
		}
	}
	if err := cw.Write(w.rowValues(row)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// FlushRound implements driver.Persister: it writes one history row per
// seat for (match, round), pulling controller-defined fields from each
// seat's Scratch map, and refreshes the status snapshot.
func (w *Writer) FlushRound(match, round int, table *session.Table) error {
	var rows []HistoryRow
	var statusRows [][]string

	table.Each(func(i int, s *session.ClientSession) {
		fields := map[string]string{}
		for k, v := range s.Scratch {
			fields[k] = fmt.Sprintf("%v", v)
		}
		rows = append(rows, HistoryRow{Match: match, Round: round, Seat: i, Fields: fields})
		statusRows = append(statusRows, []string{
			strconv.Itoa(i), s.Name, string(s.Status), s.Earnings.String(),
		})
	})

	for _, r := range rows {
		if err := w.AppendHistory(r); err != nil {
			return err
		}
	}

	return w.writeStatus(statusRows)
}

func (w *Writer) writeStatus(rows [][]string) error {
	path := w.path("status")
	if err := rotateBackup(path); err != nil {
		return fmt.Errorf("persist: rotate status backup: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create status file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"Seat", "Name", "Status", "Earnings"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendMarketEvent appends one row to the market-history file, per
// §4.6's fixed column set.
func (w *Writer) AppendMarketEvent(match, round, group int, marketColor, action string, buyer int, bid string, accept string, ask string, seller int, ts string) error {
	path := w.path("market-history")
	needHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needHeader = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persist: open market history: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needHeader {
		if err := cw.Write([]string{"Match", "Round", "Group", "Market", "Action", "Buyer", "Bid", "Accept", "Ask", "Seller", "Time"}); err != nil {
			return err
		}
	}
	row := []string{
		strconv.Itoa(match), strconv.Itoa(round), strconv.Itoa(group), marketColor, action,
		strconv.Itoa(buyer), bid, accept, ask, strconv.Itoa(seller), ts,
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// AppendChat appends one row to the chat transcript.
func (w *Writer) AppendChat(seat int, name, text string) error {
	path := w.path("chat")
	needHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needHeader = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persist: open chat file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needHeader {
		if err := cw.Write([]string{"Seat", "Name", "Text"}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{strconv.Itoa(seat), name, text}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
