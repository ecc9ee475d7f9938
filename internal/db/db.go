package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the destination SQLite database.
type DB struct {
	conn *sql.DB
	path string
}

// Staff is a destination staff record. Email is unique across the table.
type Staff struct {
	ID                   int64
	Name                 string
	Email                string
	LeaveDaysRemaining   float64
	IsTeamLeader         bool
	ReceiveNotifications bool
}

// Engagement is a destination engagement record. Description, StartDate
// and EndDate have no legacy counterpart and are synthesized during
// migration.
type Engagement struct {
	ID           int64
	Name         string
	Description  string
	StartDate    string // YYYY-MM-DD
	EndDate      string // YYYY-MM-DD
	TeamLeaderID int64
	Status       string
}

// Proposal is a destination proposal record. Description and DueDate are
// synthesized during migration.
type Proposal struct {
	ID           int64
	Name         string
	Description  string
	DueDate      string // YYYY-MM-DD
	TeamLeaderID int64
	Status       string
}

// NonBillable is a destination non-billable category record.
type NonBillable struct {
	ID   int64
	Name string
}

// HoursLog is a destination logged-hours record. ItemID points into
// engagement, proposal, or non_billable depending on Category.
type HoursLog struct {
	ID       int64
	StaffID  int64
	Category string
	ItemID   int64
	Hours    float64
	Date     string // YYYY-MM-DD
}

// LeaveRecord is a destination leave-day record. (StaffID, Date) is
// unique across the table.
type LeaveRecord struct {
	ID      int64
	StaffID int64
	Date    string // YYYY-MM-DD
}

// Utilization is a destination weekly utilization record.
type Utilization struct {
	ID                             int64
	StaffID                        int64
	WeekStart                      string // YYYY-MM-DD
	ClientUtilizationYearToDate    float64
	ClientUtilizationMonthToDate   float64
	ResourceUtilizationYearToDate  float64
	ResourceUtilizationMonthToDate float64
}

// Tables lists every destination table in foreign-key dependency order,
// parents first. Transfer steps walk it forward; clears walk it backward.
var Tables = []string{
	"staff",
	"engagement",
	"proposal",
	"non_billable",
	"hours_log",
	"leave_record",
	"utilization",
}

// Open creates a new destination DB connection and applies all pending
// schema migrations. The foreign_keys pragma is enabled so dependent
// inserts fail fast when their parent staff row is missing.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn, path: path}
	if err := d.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Path returns the filesystem path the database was opened with.
func (d *DB) Path() string {
	return d.path
}

// Begin opens a transaction on the destination store.
func (d *DB) Begin() (*sql.Tx, error) {
	return d.conn.Begin()
}

// Checkpoint folds the WAL back into the main database file. Callers
// that hand out the file itself (the download endpoint) must checkpoint
// first or committed rows may still live only in the -wal sidecar.
func (d *DB) Checkpoint() error {
	if _, err := d.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

func (d *DB) migrate() error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(d.conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// --- Transfer Writes ---
//
// All writes used by a transfer run take an open *sql.Tx so the whole
// migration commits or rolls back as one unit.

// ClearAll deletes every row from every destination table, children
// before parents so the foreign_keys pragma never rejects a delete.
func (d *DB) ClearAll(tx *sql.Tx) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := tx.Exec("DELETE FROM " + Tables[i]); err != nil {
			return fmt.Errorf("clear %s: %w", Tables[i], err)
		}
	}
	return nil
}

// InsertStaff writes a staff record inside the transfer transaction.
func (d *DB) InsertStaff(tx *sql.Tx, s *Staff) error {
	_, err := tx.Exec(
		`INSERT INTO staff (id, name, email, leave_days_remaining, is_team_leader, receive_notifications)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Email, s.LeaveDaysRemaining, boolToInt(s.IsTeamLeader), boolToInt(s.ReceiveNotifications),
	)
	if err != nil {
		return fmt.Errorf("insert staff %d: %w", s.ID, err)
	}
	return nil
}

// InsertEngagement writes an engagement record inside the transfer transaction.
func (d *DB) InsertEngagement(tx *sql.Tx, e *Engagement) error {
	_, err := tx.Exec(
		`INSERT INTO engagement (id, name, description, start_date, end_date, team_leader_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Description, e.StartDate, e.EndDate, e.TeamLeaderID, e.Status,
	)
	if err != nil {
		return fmt.Errorf("insert engagement %d: %w", e.ID, err)
	}
	return nil
}

// InsertProposal writes a proposal record inside the transfer transaction.
func (d *DB) InsertProposal(tx *sql.Tx, p *Proposal) error {
	_, err := tx.Exec(
		`INSERT INTO proposal (id, name, description, due_date, team_leader_id, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.DueDate, p.TeamLeaderID, p.Status,
	)
	if err != nil {
		return fmt.Errorf("insert proposal %d: %w", p.ID, err)
	}
	return nil
}

// InsertNonBillable writes a non-billable category record inside the transfer transaction.
func (d *DB) InsertNonBillable(tx *sql.Tx, n *NonBillable) error {
	_, err := tx.Exec(`INSERT INTO non_billable (id, name) VALUES (?, ?)`, n.ID, n.Name)
	if err != nil {
		return fmt.Errorf("insert non_billable %d: %w", n.ID, err)
	}
	return nil
}

// InsertHoursLog writes an hours-log record inside the transfer transaction.
func (d *DB) InsertHoursLog(tx *sql.Tx, h *HoursLog) error {
	_, err := tx.Exec(
		`INSERT INTO hours_log (id, staff_id, category, item_id, hours, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.StaffID, h.Category, h.ItemID, h.Hours, h.Date,
	)
	if err != nil {
		return fmt.Errorf("insert hours_log %d: %w", h.ID, err)
	}
	return nil
}

// InsertLeaveRecord writes a leave record inside the transfer transaction.
// Callers are expected to have filtered duplicate (staff_id, date) pairs
// already; a violation here still surfaces as an error.
func (d *DB) InsertLeaveRecord(tx *sql.Tx, l *LeaveRecord) error {
	_, err := tx.Exec(
		`INSERT INTO leave_record (id, staff_id, date) VALUES (?, ?, ?)`,
		l.ID, l.StaffID, l.Date,
	)
	if err != nil {
		return fmt.Errorf("insert leave_record %d: %w", l.ID, err)
	}
	return nil
}

// InsertUtilization writes a weekly utilization record inside the transfer transaction.
func (d *DB) InsertUtilization(tx *sql.Tx, u *Utilization) error {
	_, err := tx.Exec(
		`INSERT INTO utilization (id, staff_id, week_start,
			client_utilization_year_to_date, client_utilization_month_to_date,
			resource_utilization_year_to_date, resource_utilization_month_to_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.StaffID, u.WeekStart,
		u.ClientUtilizationYearToDate, u.ClientUtilizationMonthToDate,
		u.ResourceUtilizationYearToDate, u.ResourceUtilizationMonthToDate,
	)
	if err != nil {
		return fmt.Errorf("insert utilization %d: %w", u.ID, err)
	}
	return nil
}

// --- Reads ---

// CountRows returns the row count of a destination table. The name must
// be one of Tables; anything else is rejected rather than interpolated.
func (d *DB) CountRows(table string) (int, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}
	var n int
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// GetStaff retrieves a single staff record by ID, or nil if absent.
func (d *DB) GetStaff(id int64) (*Staff, error) {
	s := &Staff{}
	var isLeader, notify int
	err := d.conn.QueryRow(
		`SELECT id, name, email, leave_days_remaining, is_team_leader, receive_notifications
		 FROM staff WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.Email, &s.LeaveDaysRemaining, &isLeader, &notify)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff %d: %w", id, err)
	}
	s.IsTeamLeader = isLeader == 1
	s.ReceiveNotifications = notify == 1
	return s, nil
}

// ListEngagements returns all engagement rows ordered by ID.
func (d *DB) ListEngagements() ([]Engagement, error) {
	rows, err := d.conn.Query(
		`SELECT id, name, description, start_date, end_date, team_leader_id, status
		 FROM engagement ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list engagements: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Engagement
	for rows.Next() {
		var e Engagement
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.StartDate, &e.EndDate, &e.TeamLeaderID, &e.Status); err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListLeaveRecords returns all leave records ordered by ID.
func (d *DB) ListLeaveRecords() ([]LeaveRecord, error) {
	rows, err := d.conn.Query(`SELECT id, staff_id, date FROM leave_record ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list leave records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []LeaveRecord
	for rows.Next() {
		var l LeaveRecord
		if err := rows.Scan(&l.ID, &l.StaffID, &l.Date); err != nil {
			return nil, fmt.Errorf("scan leave record: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListHoursLogs returns all hours-log rows ordered by ID.
func (d *DB) ListHoursLogs() ([]HoursLog, error) {
	rows, err := d.conn.Query(
		`SELECT id, staff_id, category, item_id, hours, date FROM hours_log ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list hours logs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []HoursLog
	for rows.Next() {
		var h HoursLog
		if err := rows.Scan(&h.ID, &h.StaffID, &h.Category, &h.ItemID, &h.Hours, &h.Date); err != nil {
			return nil, fmt.Errorf("scan hours log: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func knownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
