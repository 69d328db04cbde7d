// Package backup writes and restores portable history backups: a
// statement-per-row dump, optionally password-encrypted, Brotli-compressed.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/dustin/go-humanize"

	"github.com/spideyz0r/clipring/pkg/crypto"
	"github.com/spideyz0r/clipring/pkg/storage"
)

const (
	filePrefix      = "clipring-backup-"
	fileExt         = ".clipbak"
	timestampLayout = "20060102-150405"
)

// ErrDecrypt is returned by Restore when the password is wrong or the
// encrypted stream has been tampered with.
var ErrDecrypt = errors.New("failed to decrypt backup")

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Filename  string
	Timestamp time.Time
	Size      int64
}

// Create writes a backup of the store at storePath into backupDir. An empty
// password produces an unencrypted backup. On failure no partial file is
// left behind.
func Create(ctx context.Context, storePath, backupDir, password string) (*BackupInfo, error) {
	db, err := storage.Open(storePath, storage.WithoutArchive())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	return CreateFrom(ctx, db, backupDir, password)
}

// CreateFrom is Create for an already open store.
func CreateFrom(ctx context.Context, src Entries, backupDir, password string) (info *BackupInfo, err error) {
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now()
	filename := filePrefix + now.Format(timestampLayout) + fileExt
	path := filepath.Join(backupDir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	if err := encode(ctx, src, f, password); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close backup file: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup file: %w", err)
	}

	return &BackupInfo{
		Path:      path,
		Filename:  filename,
		Timestamp: now.Truncate(time.Second),
		Size:      stat.Size(),
	}, nil
}

// encode layers file <- brotli <- [encryption] <- dump.
func encode(ctx context.Context, src Entries, w io.Writer, password string) error {
	bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)

	var (
		dst io.Writer = bw
		enc *crypto.Writer
	)
	if password != "" {
		var err error
		if enc, err = crypto.NewWriter(bw, password); err != nil {
			return fmt.Errorf("failed to start encryption: %w", err)
		}
		dst = enc
	}

	if err := WriteDump(ctx, src, dst); err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return nil
}

// decode reverses encode and returns the plaintext dump. The whole stream
// is read before returning so authentication covers every byte.
func decode(r io.Reader, password string) ([]byte, error) {
	var src io.Reader = brotli.NewReader(r)
	if password != "" {
		dec, err := crypto.NewReader(src, password)
		if err != nil {
			if errors.Is(err, crypto.ErrAuth) {
				return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		src = dec
	}

	dump, err := io.ReadAll(src)
	switch {
	case errors.Is(err, crypto.ErrAuth):
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return dump, nil
}

// Restore replaces the store at targetPath with the contents of a backup.
// The backup is replayed into a temporary store that is swapped in only
// after it is complete; on any failure the target is left untouched.
// The target's archive shard is not modified.
func Restore(ctx context.Context, backupPath, targetPath, password string) (err error) {
	f, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	dump, err := decode(f, password)
	if err != nil {
		return err
	}
	entries, err := ParseDump(dump)
	if err != nil {
		return err
	}

	tmp := targetPath + ".tmp"
	if err := removeStore(tmp); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			removeStore(tmp)
		}
	}()

	db, err := storage.Open(tmp, storage.WithoutArchive())
	if err != nil {
		return fmt.Errorf("failed to create temporary store: %w", err)
	}
	if err := db.Import(ctx, entries); err != nil {
		db.Close()
		return fmt.Errorf("failed to replay backup: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close temporary store: %w", err)
	}

	if err := removeStore(targetPath); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, statErr := os.Stat(tmp + suffix); statErr == nil {
			if err := os.Rename(tmp+suffix, targetPath+suffix); err != nil {
				return fmt.Errorf("failed to move %s: %w", suffix, err)
			}
		}
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		return fmt.Errorf("failed to move restored store into place: %w", err)
	}
	return nil
}

// removeStore deletes a SQLite file together with its WAL sidecars.
func removeStore(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// List returns all backup files in the backup directory, sorted by timestamp (newest first)
func List(backupDir string) ([]*BackupInfo, error) {
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return []*BackupInfo{}, nil
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []*BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}

		info, err := parseBackupFilename(entry.Name())
		if err != nil {
			continue
		}
		info.Path = filepath.Join(backupDir, entry.Name())
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// parseBackupFilename extracts the timestamp from
// clipring-backup-{yyyymmdd-hhmmss}.clipbak.
func parseBackupFilename(filename string) (*BackupInfo, error) {
	name := strings.TrimSuffix(filename, fileExt)
	stamp, ok := strings.CutPrefix(name, filePrefix)
	if !ok {
		return nil, fmt.Errorf("invalid backup filename format: %s", filename)
	}

	timestamp, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp in filename: %w", err)
	}

	return &BackupInfo{Filename: filename, Timestamp: timestamp}, nil
}

// Rotate removes old backups, keeping only the N most recent
func Rotate(backupDir string, keepCount int) error {
	if keepCount <= 0 {
		// 0 or negative means keep all backups
		return nil
	}

	backups, err := List(backupDir)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) <= keepCount {
		return nil
	}

	for _, b := range backups[keepCount:] {
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", b.Filename, err)
		}
	}
	return nil
}

// FormatSize formats a file size in human-readable format
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
