// Package migrate runs the legacy-to-destination record transfer.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"staffshift/internal/db"
	"staffshift/internal/legacy"
	"staffshift/internal/transform"
)

// Orchestrator executes full-replace migrations from a legacy source
// file into the destination store. A run either commits every table or
// rolls back everything; there is no partial success.
//
// A run owns the destination store for its duration. Concurrent runs
// against the same store are not supported.
type Orchestrator struct {
	dest *db.DB
	syn  transform.Synthesizer
	log  *zap.Logger
}

// New creates an orchestrator writing to dest, synthesizing placeholder
// fields with syn, and logging through log.
func New(dest *db.DB, syn transform.Synthesizer, log *zap.Logger) *Orchestrator {
	return &Orchestrator{dest: dest, syn: syn, log: log}
}

// Report summarizes a completed transfer run.
type Report struct {
	// Counts holds rows written per destination table.
	Counts map[string]int `json:"counts"`
	// SkippedDuplicates counts leave records dropped for reusing a
	// (staff_id, date) pair.
	SkippedDuplicates int `json:"skipped_duplicates"`
}

// transferStep is one table's read-transform-write pass. Steps run in
// declared order: staff must land before every dependent table because
// the destination checks team_leader_id/staff_id parents at insert time.
type transferStep struct {
	table string
	run   func(ctx context.Context, src *legacy.Reader, tx *sql.Tx, rep *Report) (int, error)
}

func (o *Orchestrator) steps() []transferStep {
	return []transferStep{
		{"staff", o.transferStaff},
		{"engagement", o.transferEngagements},
		{"proposal", o.transferProposals},
		{"non_billable", o.transferNonBillable},
		{"hours_log", o.transferHoursLogs},
		{"leave_record", o.transferLeaveRecords},
		{"utilization", o.transferUtilizations},
	}
}

// Run migrates every table from the legacy database at sourcePath into
// the destination store within a single transaction. The source
// connection is released on every exit path; on any error the
// destination is left exactly as it was.
func (o *Orchestrator) Run(ctx context.Context, sourcePath string) (*Report, error) {
	log := o.log.With(zap.String("source", sourcePath))
	log.Info("starting data transfer")

	src, err := legacy.Open(sourcePath)
	if err != nil {
		log.Error("cannot open legacy source", zap.Error(err))
		return nil, err
	}
	defer src.Close() //nolint:errcheck

	tx, err := o.dest.Begin()
	if err != nil {
		log.Error("cannot begin destination transaction", zap.Error(err))
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	log.Info("clearing existing data from all tables")
	if err := o.dest.ClearAll(tx); err != nil {
		log.Error("clearing failed", zap.Error(err))
		return nil, err
	}

	rep := &Report{Counts: make(map[string]int)}
	for _, step := range o.steps() {
		n, err := step.run(ctx, src, tx, rep)
		if err != nil {
			log.Error("transfer failed", zap.String("table", step.table), zap.Error(err))
			return nil, fmt.Errorf("transfer %s: %w", step.table, err)
		}
		rep.Counts[step.table] = n
		log.Info("transferred records", zap.String("table", step.table), zap.Int("count", n))
	}

	if err := tx.Commit(); err != nil {
		log.Error("commit failed", zap.Error(err))
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	committed = true

	log.Info("data transfer completed successfully",
		zap.Int("skipped_duplicates", rep.SkippedDuplicates))
	return rep, nil
}

func (o *Orchestrator) transferStaff(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "staff")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.Staff(row)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertStaff(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (o *Orchestrator) transferEngagements(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "engagement")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.Engagement(row, o.syn)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertEngagement(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (o *Orchestrator) transferProposals(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "proposal")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.Proposal(row, o.syn)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertProposal(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (o *Orchestrator) transferNonBillable(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "non_billable")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.NonBillable(row)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertNonBillable(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (o *Orchestrator) transferHoursLogs(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "hours_log")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.HoursLog(row)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertHoursLog(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// transferLeaveRecords filters duplicate (staff_id, date) pairs up front
// instead of relying on the unique index to reject them mid-transaction.
// A duplicate is expected legacy dirt: it is logged and skipped, never
// fatal. The destination was cleared at the start of the run, so only
// in-batch duplicates can occur.
func (o *Orchestrator) transferLeaveRecords(ctx context.Context, src *legacy.Reader, tx *sql.Tx, rep *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "leave_record")
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(rows))
	added := 0
	for _, row := range rows {
		rec, err := transform.LeaveRecord(row)
		if err != nil {
			return 0, err
		}
		key := fmt.Sprintf("%d|%s", rec.StaffID, rec.Date)
		if _, dup := seen[key]; dup {
			o.log.Warn("skipping duplicate leave record",
				zap.Int64("staff_id", rec.StaffID), zap.String("date", rec.Date))
			rep.SkippedDuplicates++
			continue
		}
		if err := o.dest.InsertLeaveRecord(tx, rec); err != nil {
			return 0, err
		}
		seen[key] = struct{}{}
		added++
	}
	return added, nil
}

func (o *Orchestrator) transferUtilizations(ctx context.Context, src *legacy.Reader, tx *sql.Tx, _ *Report) (int, error) {
	rows, err := src.ScanTable(ctx, "utilization")
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec, err := transform.Utilization(row)
		if err != nil {
			return 0, err
		}
		if err := o.dest.InsertUtilization(tx, rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
