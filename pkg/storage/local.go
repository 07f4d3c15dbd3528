package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStaging implements Staging using the local filesystem
type LocalStaging struct {
	basePath string
}

// NewLocalStaging creates a new local filesystem staging area
func NewLocalStaging(basePath string) (*LocalStaging, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &LocalStaging{basePath: basePath}, nil
}

// Stage stores an upload and returns its metadata
func (s *LocalStaging) Stage(ctx context.Context, orgID uuid.UUID, filename string, r io.Reader) (*StagedFile, error) {
	fileID := uuid.New()

	// Create organization directory
	orgDir := filepath.Join(s.basePath, orgID.String())
	if err := os.MkdirAll(orgDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create organization directory: %w", err)
	}

	// Sanitize filename and add UUID prefix for uniqueness
	safeFilename := sanitizeFilename(filename)
	storedFilename := fmt.Sprintf("%s_%s", fileID.String()[:8], safeFilename)
	filePath := filepath.Join(orgDir, storedFilename)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filePath) // Cleanup on error
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &StagedFile{
		ID:        fileID,
		Name:      filename,
		Size:      size,
		Path:      storedFilename,
		CreatedAt: time.Now(),
	}

	if err := s.saveMetadata(orgID, fileID, info); err != nil {
		os.Remove(filePath) // Cleanup on error
		return nil, err
	}

	return info, nil
}

// Open returns a reader over a staged upload
func (s *LocalStaging) Open(ctx context.Context, orgID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *StagedFile, error) {
	info, err := s.getInfo(orgID, fileID)
	if err != nil {
		return nil, nil, err
	}

	filePath := filepath.Join(s.basePath, orgID.String(), info.Path)
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, info, nil
}

// Remove deletes a staged upload once the batch pipeline has consumed it
func (s *LocalStaging) Remove(ctx context.Context, orgID uuid.UUID, fileID uuid.UUID) error {
	info, err := s.getInfo(orgID, fileID)
	if err != nil {
		return err
	}

	filePath := filepath.Join(s.basePath, orgID.String(), info.Path)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	metaPath := filepath.Join(s.basePath, orgID.String(), ".meta", fileID.String()+".json")
	os.Remove(metaPath)

	return nil
}

// List returns all staged uploads for an organization
func (s *LocalStaging) List(ctx context.Context, orgID uuid.UUID) ([]*StagedFile, error) {
	metaDir := filepath.Join(s.basePath, orgID.String(), ".meta")
	if _, err := os.Stat(metaDir); os.IsNotExist(err) {
		return []*StagedFile{}, nil
	}

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*StagedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		fileID := strings.TrimSuffix(entry.Name(), ".json")
		id, err := uuid.Parse(fileID)
		if err != nil {
			continue
		}

		info, err := s.getInfo(orgID, id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	return files, nil
}

// getInfo returns metadata for a staged upload
func (s *LocalStaging) getInfo(orgID, fileID uuid.UUID) (*StagedFile, error) {
	metaPath := filepath.Join(s.basePath, orgID.String(), ".meta", fileID.String()+".json")

	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("staged file not found: %s", fileID)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info StagedFile
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &info, nil
}

// saveMetadata saves staged file metadata to a JSON file
func (s *LocalStaging) saveMetadata(orgID, fileID uuid.UUID, info *StagedFile) error {
	metaDir := filepath.Join(s.basePath, orgID.String(), ".meta")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	metaPath := filepath.Join(metaDir, fileID.String()+".json")
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
