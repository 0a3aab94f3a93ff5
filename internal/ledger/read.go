package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Entry is one recorded run.
type Entry struct {
	Seq            int64  `json:"seq"`
	RunID          string `json:"run_id"`
	Scenario       string `json:"scenario"`
	Intent         string `json:"intent"`
	Verdict        string `json:"verdict"`
	ExitCode       int    `json:"exit_code"`
	SnapshotDigest string `json:"snapshot_digest"`
	PinsDigest     string `json:"pins_digest,omitempty"`
}

// UnitRecord is one recorded unit outcome.
type UnitRecord struct {
	UnitID       string `json:"unit_id"`
	Index        int    `json:"index"`
	Status       string `json:"status"`
	FaultKind    string `json:"fault_kind,omitempty"`
	FaultMessage string `json:"fault_message,omitempty"`
	StartSeq     int64  `json:"start_seq"`
	EndSeq       int64  `json:"end_seq"`
}

// Flakiness summarizes whether a scenario's runs agree.
type Flakiness struct {
	Scenario string `json:"scenario"`
	Runs     int    `json:"runs"`

	// Verdicts and Digests count distinct values across runs.
	Verdicts int `json:"verdicts"`
	Digests  int `json:"digests"`

	// Flaky is set when runs disagreed on verdict or snapshot.
	Flaky bool `json:"flaky"`
}

// History returns every run of scenario in insertion order. Returns an
// empty slice (not nil) if there are none.
func (l *Ledger) History(ctx context.Context, scenario string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, run_id, scenario, intent, verdict, exit_code, snapshot_digest, pins_digest
		FROM runs
		WHERE scenario = ?
		ORDER BY seq ASC
	`, scenario)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Scenario, &e.Intent, &e.Verdict, &e.ExitCode, &e.SnapshotDigest, &e.PinsDigest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

// Snapshot returns the canonical snapshot recorded for runID.
func (l *Ledger) Snapshot(ctx context.Context, runID string) ([]byte, bool, error) {
	var snap string
	err := l.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE run_id = ?`, runID).Scan(&snap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query snapshot: %w", err)
	}
	return []byte(snap), true, nil
}

// Outcomes returns the unit outcomes of runID in launch order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]UnitRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT unit_id, idx, status, fault_kind, fault_message, start_seq, end_seq
		FROM unit_outcomes
		WHERE run_id = ?
		ORDER BY idx ASC, unit_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := []UnitRecord{}
	for rows.Next() {
		var u UnitRecord
		if err := rows.Scan(&u.UnitID, &u.Index, &u.Status, &u.FaultKind, &u.FaultMessage, &u.StartSeq, &u.EndSeq); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// Flaky reports whether scenario's recorded runs disagree.
func (l *Ledger) Flaky(ctx context.Context, scenario string) (Flakiness, error) {
	f := Flakiness{Scenario: scenario}
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT verdict), COUNT(DISTINCT snapshot_digest)
		FROM runs
		WHERE scenario = ?
	`, scenario).Scan(&f.Runs, &f.Verdicts, &f.Digests)
	if err != nil {
		return Flakiness{}, fmt.Errorf("query flakiness: %w", err)
	}
	f.Flaky = f.Verdicts > 1 || f.Digests > 1
	return f, nil
}
