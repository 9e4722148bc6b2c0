package sink

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// Supported OpenDB drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// LogRecord is the relational row of one LogEntry. (experiment_id, turn_id)
// is the primary key, so exporting the same log twice adds nothing.
type LogRecord struct {
	ExperimentID         string  `gorm:"primaryKey;size:36"`
	TurnID               int     `gorm:"primaryKey;autoIncrement:false"`
	Scenario             string  `gorm:"size:128;index"`
	SpeakerModel         string  `gorm:"size:255;index"`
	ResponderModel       string  `gorm:"size:255"`
	Timestamp            string  `gorm:"size:40"`
	LatencyMS            float64 `gorm:"column:latency_ms"`
	InputTokens          int
	OutputTokens         int
	Content              string `gorm:"type:text"`
	FinishReason         string `gorm:"size:32"`
	IsRefusal            bool
	SystemPromptSnapshot string `gorm:"type:text"`
}

func (LogRecord) TableName() string { return "log_entries" }

func recordOf(e simulation.LogEntry) LogRecord {
	return LogRecord(e)
}

func (r LogRecord) entry() simulation.LogEntry {
	return simulation.LogEntry(r)
}

// OpenDB connects to driver (sqlite, postgres or mysql) at dsn.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("sink: unsupported database driver %q (supported: sqlite, postgres, mysql)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, &PersistenceError{Op: "connect " + driver, Err: err}
	}
	return db, nil
}

// ExportSQL inserts entries into log_entries, creating the table if needed.
// Rows whose key already exists are skipped. It returns the number of rows
// inserted.
func ExportSQL(ctx context.Context, db *gorm.DB, entries []simulation.LogEntry) (int64, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&LogRecord{}); err != nil {
		return 0, &PersistenceError{Op: "migrate", Path: LogRecord{}.TableName(), Err: err}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([]LogRecord, len(entries))
	for i, e := range entries {
		rows[i] = recordOf(e)
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 200)
	if res.Error != nil {
		return res.RowsAffected, &PersistenceError{Op: "insert", Path: LogRecord{}.TableName(), Err: res.Error}
	}
	return res.RowsAffected, nil
}

// QuerySQL returns the entries of one experiment in turn order.
func QuerySQL(ctx context.Context, db *gorm.DB, experimentID string) ([]simulation.LogEntry, error) {
	var rows []LogRecord
	err := db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("turn_id").
		Find(&rows).Error
	if err != nil {
		return nil, &PersistenceError{Op: "query", Path: LogRecord{}.TableName(), Err: err}
	}
	out := make([]simulation.LogEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}
