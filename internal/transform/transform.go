// Package transform maps legacy row tuples onto destination records.
// Every function here is a pure mapping with no side effects; anything
// stateful (randomized placeholders) goes through the Synthesizer.
package transform

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"staffshift/internal/db"
)

// DateLayout is the only accepted textual date format in legacy data.
const DateLayout = "2006-01-02"

// ErrDateFormat indicates a legacy date string that is not a valid
// YYYY-MM-DD calendar date.
var ErrDateFormat = errors.New("date is not in YYYY-MM-DD format")

// ErrNotNumeric indicates a legacy value that could not be coerced to a
// number.
var ErrNotNumeric = errors.New("value is not numeric")

// Staff maps a legacy staff tuple (id, name, email, leave_days_remaining,
// is_team_leader, receive_notifications) onto a destination record.
func Staff(row []any) (*db.Staff, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("staff row has %d columns, want 6", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("staff id: %w", err)
	}
	leave, err := toFloat(row[3])
	if err != nil {
		return nil, fmt.Errorf("staff %d leave_days_remaining: %w", id, err)
	}
	return &db.Staff{
		ID:                   id,
		Name:                 toString(row[1]),
		Email:                toString(row[2]),
		LeaveDaysRemaining:   leave,
		IsTeamLeader:         toBool(row[4]),
		ReceiveNotifications: toBool(row[5]),
	}, nil
}

// Engagement maps a legacy engagement tuple (id, name, team_leader_id,
// status). The legacy schema carries no description or dates, so those
// are filled by the Synthesizer.
func Engagement(row []any, syn Synthesizer) (*db.Engagement, error) {
	if len(row) < 4 {
		return nil, fmt.Errorf("engagement row has %d columns, want 4", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("engagement id: %w", err)
	}
	leader, err := toInt(row[2])
	if err != nil {
		return nil, fmt.Errorf("engagement %d team_leader_id: %w", id, err)
	}
	return &db.Engagement{
		ID:           id,
		Name:         toString(row[1]),
		TeamLeaderID: leader,
		Status:       toString(row[3]),
		Description:  syn.Description(),
		StartDate:    syn.FutureDate(),
		EndDate:      syn.FutureDate(),
	}, nil
}

// Proposal maps a legacy proposal tuple (id, name, team_leader_id,
// status), synthesizing the description and due date.
func Proposal(row []any, syn Synthesizer) (*db.Proposal, error) {
	if len(row) < 4 {
		return nil, fmt.Errorf("proposal row has %d columns, want 4", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("proposal id: %w", err)
	}
	leader, err := toInt(row[2])
	if err != nil {
		return nil, fmt.Errorf("proposal %d team_leader_id: %w", id, err)
	}
	return &db.Proposal{
		ID:           id,
		Name:         toString(row[1]),
		TeamLeaderID: leader,
		Status:       toString(row[3]),
		Description:  syn.Description(),
		DueDate:      syn.FutureDate(),
	}, nil
}

// NonBillable maps a legacy non_billable tuple (id, name).
func NonBillable(row []any) (*db.NonBillable, error) {
	if len(row) < 2 {
		return nil, fmt.Errorf("non_billable row has %d columns, want 2", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("non_billable id: %w", err)
	}
	return &db.NonBillable{ID: id, Name: toString(row[1])}, nil
}

// HoursLog maps a legacy hours_log tuple (id, staff_id, category,
// item_id, hours, date).
func HoursLog(row []any) (*db.HoursLog, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("hours_log row has %d columns, want 6", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("hours_log id: %w", err)
	}
	staffID, err := toInt(row[1])
	if err != nil {
		return nil, fmt.Errorf("hours_log %d staff_id: %w", id, err)
	}
	itemID, err := toInt(row[3])
	if err != nil {
		return nil, fmt.Errorf("hours_log %d item_id: %w", id, err)
	}
	hours, err := toFloat(row[4])
	if err != nil {
		return nil, fmt.Errorf("hours_log %d hours: %w", id, err)
	}
	date, err := ParseDate(row[5])
	if err != nil {
		return nil, fmt.Errorf("hours_log %d date: %w", id, err)
	}
	return &db.HoursLog{
		ID:       id,
		StaffID:  staffID,
		Category: toString(row[2]),
		ItemID:   itemID,
		Hours:    hours,
		Date:     date,
	}, nil
}

// LeaveRecord maps a legacy leave_record tuple (id, staff_id, date).
func LeaveRecord(row []any) (*db.LeaveRecord, error) {
	if len(row) < 3 {
		return nil, fmt.Errorf("leave_record row has %d columns, want 3", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("leave_record id: %w", err)
	}
	staffID, err := toInt(row[1])
	if err != nil {
		return nil, fmt.Errorf("leave_record %d staff_id: %w", id, err)
	}
	date, err := ParseDate(row[2])
	if err != nil {
		return nil, fmt.Errorf("leave_record %d date: %w", id, err)
	}
	return &db.LeaveRecord{ID: id, StaffID: staffID, Date: date}, nil
}

// Utilization maps a legacy utilization tuple (id, staff_id, week_start,
// followed by four percentage columns).
func Utilization(row []any) (*db.Utilization, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("utilization row has %d columns, want 7", len(row))
	}
	id, err := toInt(row[0])
	if err != nil {
		return nil, fmt.Errorf("utilization id: %w", err)
	}
	staffID, err := toInt(row[1])
	if err != nil {
		return nil, fmt.Errorf("utilization %d staff_id: %w", id, err)
	}
	week, err := ParseDate(row[2])
	if err != nil {
		return nil, fmt.Errorf("utilization %d week_start: %w", id, err)
	}
	pct := make([]float64, 4)
	for i := range pct {
		pct[i], err = toFloat(row[3+i])
		if err != nil {
			return nil, fmt.Errorf("utilization %d percentage column %d: %w", id, 3+i, err)
		}
	}
	return &db.Utilization{
		ID:                             id,
		StaffID:                        staffID,
		WeekStart:                      week,
		ClientUtilizationYearToDate:    pct[0],
		ClientUtilizationMonthToDate:   pct[1],
		ResourceUtilizationYearToDate:  pct[2],
		ResourceUtilizationMonthToDate: pct[3],
	}, nil
}

// ParseDate normalizes a legacy date value to YYYY-MM-DD. Strings must
// match the layout exactly and name a real calendar date; time.Time
// values pass through unparsed.
func ParseDate(v any) (string, error) {
	switch d := v.(type) {
	case time.Time:
		return d.Format(DateLayout), nil
	case string:
		t, err := time.Parse(DateLayout, d)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrDateFormat, d)
		}
		return t.Format(DateLayout), nil
	case []byte:
		return ParseDate(string(d))
	default:
		return "", fmt.Errorf("%w: unsupported value %v (%T)", ErrDateFormat, v, v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	case []byte:
		return toFloat(string(n))
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNotNumeric, v, v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return i, nil
	case []byte:
		return toInt(string(n))
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNotNumeric, v, v)
	}
}

// toBool applies truthiness coercion: zero numbers, empty strings, and
// NULL are false, everything else is true.
func toBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b != ""
	case []byte:
		return len(b) != 0
	default:
		return true
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
