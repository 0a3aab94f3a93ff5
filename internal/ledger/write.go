package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/repro/internal/canon"
	"github.com/roach88/repro/internal/harness"
)

// Record appends a run. A report without a run id (a scenario that failed
// before bootstrap) is given a fresh UUIDv7. Recording the same run id
// twice is a no-op.
func (l *Ledger) Record(ctx context.Context, report *harness.Report) (string, error) {
	snap, err := report.Snapshot()
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	digest := canon.DigestBytes(canon.DomainSnapshot, snap)

	runID := report.RunID
	if runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("record run: %w", err)
		}
		runID = id.String()
	}

	pinsDigest := ""
	if report.Resolution != nil {
		pinsDigest = report.Resolution.Digest
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, scenario, intent, verdict, exit_code, snapshot_digest, snapshot, pins_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		runID,
		report.Scenario,
		string(report.Intent),
		string(report.Verdict),
		report.ExitCode(),
		digest,
		string(snap),
		pinsDigest,
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return runID, nil
	}

	if report.Results != nil {
		for _, o := range report.Results.Outcomes {
			kind, msg := "", ""
			if o.Fault != nil {
				kind, msg = o.Fault.Kind, o.Fault.Message
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO unit_outcomes
				(run_id, unit_id, idx, status, fault_kind, fault_message, start_seq, end_seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, o.UnitID, o.Index, string(o.Status), kind, msg, o.StartSeq, o.EndSeq)
			if err != nil {
				return "", fmt.Errorf("record unit %s: %w", o.UnitID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return runID, nil
}
