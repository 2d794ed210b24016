package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const backupPrefix = "data_backup_"

// BackupInfo describes one knowledge backup file.
type BackupInfo struct {
	Filename string    `json:"filename"`
	Created  time.Time `json:"created"`
	Size     int64     `json:"size"`
}

// ListBackups returns the backups newest first, creating the directory if needed.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create backup directory %s", s.backupDir)
	}

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read backup directory %s", s.backupDir)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Filename: entry.Name(),
			Created:  info.ModTime(),
			Size:     info.Size(),
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Filename > backups[j].Filename
		}
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// backupLocked copies the current knowledge file into the backup directory.
// It returns an empty name when there is nothing to back up.
func (s *Store) backupLocked() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read %s for backup", s.path)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create backup directory %s", s.backupDir)
	}

	ext := filepath.Ext(s.path)
	if ext == "" {
		ext = ".json"
	}
	name := backupPrefix + s.now().Format("20060102_150405") + ext
	target := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write backup %s", target)
	}
	return name, nil
}
