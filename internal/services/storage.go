package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/utils"
)

// StorageService keeps uploaded contract files on local disk. The
// relational row stores the path; processing reads the bytes back.
type StorageService interface {
	Save(documentID uuid.UUID, originalName string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Remove(path string) error
}

type storageService struct {
	log *logger.Logger
	dir string
}

func NewStorageService(baseLog *logger.Logger) (StorageService, error) {
	dir := utils.GetEnv("UPLOAD_DIR", "./uploads", baseLog)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &storageService{
		log: baseLog.With("service", "StorageService"),
		dir: dir,
	}, nil
}

func (s *storageService) Save(documentID uuid.UUID, originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := documentID.String() + ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func (s *storageService) Read(path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.dir)) {
		return nil, fmt.Errorf("path %q outside upload dir", path)
	}
	return os.ReadFile(clean)
}

func (s *storageService) Remove(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.dir)) {
		return fmt.Errorf("path %q outside upload dir", path)
	}
	err := os.Remove(clean)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
