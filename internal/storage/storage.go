package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bdougie/anomalyvision/internal/models"
)

const (
	batchSize   = 10 // Number of reports to batch write
	resultsFile = "analysis_results.json"
)

// Storage defines the interface for storing analysis reports
type Storage interface {
	// AddResult adds a single report
	AddResult(ctx context.Context, report models.Report) error

	// Flush ensures all pending reports are saved
	Flush() error

	// Recent returns the newest reports first, optionally for a single video
	Recent(ctx context.Context, video string, limit int) ([]models.Report, error)

	Close()
}

// VideoName derives the storage key for a video from its path
func VideoName(videoPath string) string {
	return strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
}

// FileStorage keeps reports as JSON under <outputDir>/<video>/analysis_results.json
type FileStorage struct {
	mu        sync.Mutex
	pending   []models.Report
	outputDir string
}

// NewFileStorage creates a new file-backed storage manager
func NewFileStorage(outputDir string) *FileStorage {
	return &FileStorage{outputDir: outputDir}
}

// AddResult adds a report to the batch and flushes if the batch is full
func (s *FileStorage) AddResult(ctx context.Context, report models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, report)

	// Write to disk when batch is full
	if len(s.pending) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending reports to disk
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *FileStorage) Close() {
	if err := s.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing reports: %v\n", err)
	}
}

// Internal flush implementation, groups pending reports by video
func (s *FileStorage) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	byVideo := make(map[string][]models.Report)
	for _, r := range s.pending {
		byVideo[r.Video] = append(byVideo[r.Video], r)
	}

	for video, reports := range byVideo {
		path := s.resultsPath(video)

		existing, err := readReports(path)
		if err != nil {
			return err
		}

		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for results: %w", err)
		}
		if err := writeReports(path, append(existing, reports...)); err != nil {
			return err
		}
	}

	s.pending = nil // Clear the batch
	return nil
}

// Recent reads stored reports, including ones not yet flushed
func (s *FileStorage) Recent(ctx context.Context, video string, limit int) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paths []string
	if video != "" {
		paths = []string{s.resultsPath(video)}
	} else {
		matches, err := filepath.Glob(filepath.Join(s.outputDir, "*", resultsFile))
		if err != nil {
			return nil, fmt.Errorf("failed to list results: %w", err)
		}
		paths = matches
	}

	var reports []models.Report
	for _, path := range paths {
		stored, err := readReports(path)
		if err != nil {
			return nil, err
		}
		reports = append(reports, stored...)
	}
	for _, r := range s.pending {
		if video == "" || r.Video == video {
			reports = append(reports, r)
		}
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *FileStorage) resultsPath(video string) string {
	return filepath.Join(s.outputDir, video, resultsFile)
}

func readReports(path string) ([]models.Report, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var reports []models.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %w", err)
	}
	return reports, nil
}

func writeReports(path string, reports []models.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
