// Package history keeps a journal of every change published by the profile
// manager in a SQL database, so edits can be reviewed after the fact.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cavestory-tools/cse/internal/config"
	"github.com/cavestory-tools/cse/internal/dispatcher"
	"github.com/cavestory-tools/cse/pkg/core"
)

// Change is one journaled event.
type Change struct {
	ID       uint           `json:"id" gorm:"primarykey"`
	Time     time.Time      `json:"time" gorm:"index:idx_change_time"`
	Profile  string         `json:"profile" gorm:"size:1024;index:idx_change_profile"`
	Slot     int            `json:"slot"`
	Kind     string         `json:"kind" gorm:"size:32"`
	Field    string         `json:"field" gorm:"size:64"`
	Index    int            `json:"index"`
	OldValue datatypes.JSON `json:"oldValue"`
	NewValue datatypes.JSON `json:"newValue"`
}

// Old returns the value before the change as JSON.
func (c Change) Old() json.RawMessage { return unwrap(c.OldValue) }

// New returns the value after the change as JSON.
func (c Change) New() json.RawMessage { return unwrap(c.NewValue) }

// document wraps every stored value in an object. SQLite gives JSON columns
// numeric affinity, so a bare number would come back as an integer.
type document struct {
	V any `json:"v"`
}

func unwrap(doc datatypes.JSON) json.RawMessage {
	var d struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(doc, &d); err != nil || len(d.V) == 0 {
		return json.RawMessage("null")
	}
	return d.V
}

// Source reports which profile and slot changes currently apply to.
type Source func() (profile string, slot int)

// Manager handles the journal database connection.
type Manager struct {
	DB     *gorm.DB
	SqlDB  *sql.DB
	Logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a new journal manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log, now: time.Now}
}

// Open connects to the database named by cfg and migrates the schema.
func (m *Manager) Open(cfg config.HistoryConfig) error {
	var err error
	switch cfg.Type {
	case "postgres":
		m.DB, err = GetPostgresDB(cfg.DSN)
	case "sqlite", "":
		m.DB, err = GetSqliteDB(cfg.Path)
	default:
		return fmt.Errorf("unknown history database type %q", cfg.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s history DB: %w", cfg.Type, err)
	}

	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := m.SqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	if err := m.DB.AutoMigrate(&Change{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Info().Str("type", m.DB.Dialector.Name()).Msg("History journal ready")
	return nil
}

// GetPostgresDB returns a connection to the Postgres database at dsn.
func GetPostgresDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// every connection to :memory: is a fresh database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}
	return db, nil
}

// Record journals a batch of events against profile and slot.
func (m *Manager) Record(profile string, slot int, batch []core.ChangeEvent) error {
	if m.DB == nil {
		return fmt.Errorf("history DB not open")
	}
	if len(batch) == 0 {
		return nil
	}

	now := m.now().UTC()
	rows := make([]Change, 0, len(batch))
	for _, e := range batch {
		oldValue, err := encode(e.Old)
		if err != nil {
			return fmt.Errorf("encoding old value of %s: %w", e.Field, err)
		}
		newValue, err := encode(e.New)
		if err != nil {
			return fmt.Errorf("encoding new value of %s: %w", e.Field, err)
		}
		rows = append(rows, Change{
			Time:     now,
			Profile:  profile,
			Slot:     slot,
			Kind:     e.Kind.String(),
			Field:    e.Field,
			Index:    e.Index,
			OldValue: oldValue,
			NewValue: newValue,
		})
	}
	return m.DB.Create(&rows).Error
}

func encode(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(document{V: v})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// Listener returns a dispatcher listener that journals each batch under the
// profile and slot reported by src at delivery time.
func (m *Manager) Listener(src Source) dispatcher.Listener {
	return func(batch []core.ChangeEvent) {
		profile, slot := src()
		if err := m.Record(profile, slot, batch); err != nil {
			m.Logger.Error().Err(err).Int("events", len(batch)).Msg("Failed to journal changes")
		}
	}
}

// Recent returns up to limit changes, newest first.
func (m *Manager) Recent(limit int) ([]Change, error) {
	var changes []Change
	err := m.DB.Order("id DESC").Limit(limit).Find(&changes).Error
	return changes, err
}

// ForProfile returns the changes recorded against profile, oldest first.
func (m *Manager) ForProfile(profile string) ([]Change, error) {
	var changes []Change
	err := m.DB.Where("profile = ?", profile).Order("id").Find(&changes).Error
	return changes, err
}

// DumpToDisk writes a SQLite journal to path, replacing any existing file.
func (m *Manager) DumpToDisk(path string) error {
	if path == "" {
		return fmt.Errorf("sqlite file path not set")
	}
	if m.DB.Dialector.Name() != "sqlite" {
		return fmt.Errorf("dump needs a sqlite journal, have %s", m.DB.Dialector.Name())
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	start := time.Now()
	if err := m.DB.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("error dumping DB to disk: %s", err)
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", path).Msg("Dumped history DB to disk")
	return nil
}

// Close releases the database connection.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}
