package classify

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// StatFunc matches os.Stat.
type StatFunc func(name string) (fs.FileInfo, error)

func (c *Classifier) classifyFiles(paths []string) *storage.Entry {
	stat := c.Stat
	if stat == nil {
		stat = os.Stat
	}

	var (
		total int64
		exts  []string
	)
	for _, p := range paths {
		if info, err := stat(p); err == nil && !info.IsDir() {
			total += info.Size()
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext != "" && !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}

	return &storage.Entry{
		Kind:     storage.KindFiles,
		Content:  strings.Join(paths, "\n"),
		RichText: FileMeta(total, exts),
	}
}

// FileMeta renders the metadata line stored with a file-list entry.
func FileMeta(total int64, exts []string) string {
	return fmt.Sprintf("Size:%d Ext:%s", total, strings.Join(exts, " "))
}
