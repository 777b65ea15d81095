package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// templateRecord is the persisted shape of a template. Steps and
// defaults travel as one JSON document; the store never inspects them.
type templateRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	Name        string    `gorm:"size:255;index"`
	Description string    `gorm:"size:1024"`
	Spec        string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (templateRecord) TableName() string { return "workflow_templates" }

// Store persists validated workflow templates.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// StoreConfig selects the database driver and DSN.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite | postgres | mysql
	DSN    string `yaml:"dsn" json:"dsn"`
}

// DefaultStoreConfig is an in-memory sqlite store.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Driver: "sqlite", DSN: "file::memory:?cache=shared"}
}

// NewStore opens the configured database and migrates the template
// table.
func NewStore(cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported template store driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open template store: %w", err)
	}
	if err := db.AutoMigrate(&templateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate template store: %w", err)
	}

	return &Store{db: db, logger: logger.With(zap.String("component", "workflow_store"))}, nil
}

// Save validates and persists a template, assigning an ID when absent.
// Saving an existing ID overwrites.
func (s *Store) Save(t *Template) error {
	if err := Validate(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	spec, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	record := templateRecord{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Spec:        string(spec),
	}
	if err := s.db.Save(&record).Error; err != nil {
		return fmt.Errorf("save template %s: %w", t.ID, err)
	}
	s.logger.Info("template saved", zap.String("id", t.ID), zap.String("name", t.Name))
	return nil
}

// Get loads a template by ID.
func (s *Store) Get(id string) (*Template, error) {
	var record templateRecord
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}
	var t Template
	if err := json.Unmarshal([]byte(record.Spec), &t); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", id, err)
	}
	return &t, nil
}

// List returns all stored templates, most recently updated first.
func (s *Store) List() ([]*Template, error) {
	var records []templateRecord
	if err := s.db.Order("updated_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]*Template, 0, len(records))
	for _, record := range records {
		var t Template
		if err := json.Unmarshal([]byte(record.Spec), &t); err != nil {
			s.logger.Warn("skipping undecodable template",
				zap.String("id", record.ID), zap.Error(err))
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

// Delete removes a template by ID. Deleting an unknown ID is not an
// error.
func (s *Store) Delete(id string) error {
	if err := s.db.Delete(&templateRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}
