package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"schemabench/internal/db"
	"schemabench/internal/model"

	"gorm.io/gorm"
)

// ErrRunNotFound is returned when a stored run id does not exist.
var ErrRunNotFound = errors.New("test run not found")

// RunStore persists completed test runs. Records live in the database with
// the full result file serialized in one column; a JSON copy is also written
// under the output directory for offline inspection.
type RunStore struct {
	outputDir string
}

func NewRunStore(outputDir string) *RunStore {
	return &RunStore{outputDir: outputDir}
}

// Save writes the finished run file. A persisted run is never mutated again.
func (s *RunStore) Save(file *model.TestRunFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("serialize test run: %w", err)
	}

	record := model.TestRun{
		ID:         file.ID,
		StartedAt:  file.StartedAt,
		DurationMs: file.DurationMs,
		Models:     strings.Join(file.Config.Models, ","),
		Passed:     file.Summary.Passed,
		Failed:     file.Summary.Failed,
		DataJSON:   string(data),
	}
	if err := db.DB.Save(&record).Error; err != nil {
		return fmt.Errorf("save test run: %w", err)
	}

	if s.outputDir != "" {
		_ = os.MkdirAll(s.outputDir, 0o755)
		pretty, _ := json.MarshalIndent(file, "", "  ")
		path := filepath.Join(s.outputDir, fmt.Sprintf("test_run_%s.json", file.ID))
		if err := os.WriteFile(path, pretty, 0o644); err != nil {
			return fmt.Errorf("export test run file: %w", err)
		}
	}
	return nil
}

// Load returns one persisted run file by id.
func (s *RunStore) Load(id string) (*model.TestRunFile, error) {
	var record model.TestRun
	if err := db.DB.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("load test run: %w", err)
	}

	var file model.TestRunFile
	if err := json.Unmarshal([]byte(record.DataJSON), &file); err != nil {
		return nil, fmt.Errorf("decode test run %s: %w", id, err)
	}
	return &file, nil
}

// List returns the stored run records, newest first, without their payloads.
func (s *RunStore) List() ([]model.TestRun, error) {
	var records []model.TestRun
	if err := db.DB.Select("id", "created_at", "updated_at", "started_at", "duration_ms", "models", "passed", "failed").
		Order("started_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list test runs: %w", err)
	}
	return records, nil
}

// Delete removes one persisted run by id.
func (s *RunStore) Delete(id string) error {
	res := db.DB.Delete(&model.TestRun{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete test run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}
