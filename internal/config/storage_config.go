package config

import "path/filepath"

type StorageConfig interface {
	GetStorageDriver() string
	GetStorageDSN() string
}

type Storage struct {
	src *source
}

var _ StorageConfig = Storage{}

// GetStorageDriver is one of memory, file, sqlite or postgres
func (s Storage) GetStorageDriver() string {
	return s.src.get("STORAGE_DRIVER", "file")
}

// GetStorageDSN is a file path for file/sqlite and a connection string for postgres
func (s Storage) GetStorageDSN() string {
	folder := s.src.get(folderEnvVar, "./data")
	switch s.GetStorageDriver() {
	case "sqlite":
		return s.src.get("STORAGE_DSN", filepath.Join(folder, "session.db"))
	case "file":
		return s.src.get("STORAGE_DSN", filepath.Join(folder, "session.json"))
	default:
		return s.src.get("STORAGE_DSN", "")
	}
}
