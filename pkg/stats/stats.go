package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// Source is the part of the store statistics are collected from.
type Source interface {
	EachSummary(ctx context.Context, fn func(*storage.Summary) error) error
	CountArchived(ctx context.Context) (int64, error)
}

// Stats contains aggregated statistics about clipboard history
type Stats struct {
	TotalEntries     int64
	PinnedEntries    int64
	ArchivedEntries  int64
	TotalSize        int64
	AvgPerDay        float64
	ByKind           map[storage.Kind]int
	TopSources       []SourceCount
	TimeDistribution map[int]int // hour -> count
	FirstEntry       time.Time
	LastEntry        time.Time
}

// SourceCount represents an application and how many entries it produced
type SourceCount struct {
	App   string
	Count int
}

// Collect gathers statistics from the store
func Collect(ctx context.Context, src Source) (*Stats, error) {
	stats := &Stats{
		ByKind:           make(map[storage.Kind]int),
		TimeDistribution: make(map[int]int),
	}

	sources := make(map[string]int)
	err := src.EachSummary(ctx, func(s *storage.Summary) error {
		stats.TotalEntries++
		stats.TotalSize += s.Size
		stats.ByKind[s.Kind]++
		if s.Pinned {
			stats.PinnedEntries++
		}
		if s.SourceApp != "" {
			sources[s.SourceApp]++
		}
		stats.TimeDistribution[s.CreatedAt.Hour()]++

		if stats.FirstEntry.IsZero() || s.CreatedAt.Before(stats.FirstEntry) {
			stats.FirstEntry = s.CreatedAt
		}
		if s.CreatedAt.After(stats.LastEntry) {
			stats.LastEntry = s.CreatedAt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	if stats.ArchivedEntries, err = src.CountArchived(ctx); err != nil {
		return nil, fmt.Errorf("failed to count archived entries: %w", err)
	}

	if stats.TotalEntries == 0 {
		return stats, nil
	}

	daysDiff := stats.LastEntry.Sub(stats.FirstEntry).Hours() / 24
	if daysDiff > 1 {
		stats.AvgPerDay = float64(stats.TotalEntries) / daysDiff
	} else {
		stats.AvgPerDay = float64(stats.TotalEntries)
	}

	stats.TopSources = make([]SourceCount, 0, len(sources))
	for app, count := range sources {
		stats.TopSources = append(stats.TopSources, SourceCount{App: app, Count: count})
	}
	sort.Slice(stats.TopSources, func(i, j int) bool {
		if stats.TopSources[i].Count != stats.TopSources[j].Count {
			return stats.TopSources[i].Count > stats.TopSources[j].Count
		}
		return stats.TopSources[i].App < stats.TopSources[j].App
	})

	return stats, nil
}

// Format formats statistics for display
func (s *Stats) Format(topN int) string {
	if s.TotalEntries == 0 {
		if s.ArchivedEntries > 0 {
			return fmt.Sprintf("No live entries (%d archived).", s.ArchivedEntries)
		}
		return "No clipboard history yet."
	}

	var b strings.Builder
	b.WriteString("clipring - History Statistics\n")
	b.WriteString("=============================\n\n")

	fmt.Fprintf(&b, "Total Entries:    %d\n", s.TotalEntries)
	fmt.Fprintf(&b, "Pinned:           %d\n", s.PinnedEntries)
	fmt.Fprintf(&b, "Archived:         %d\n", s.ArchivedEntries)
	fmt.Fprintf(&b, "Stored Size:      %s\n", humanize.IBytes(uint64(max(s.TotalSize, 0))))
	fmt.Fprintf(&b, "Avg Per Day:      %.1f\n", s.AvgPerDay)
	fmt.Fprintf(&b, "First Entry:      %s\n", s.FirstEntry.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Last Entry:       %s (%s)\n\n", s.LastEntry.Format("2006-01-02 15:04:05"), humanize.Time(s.LastEntry))

	b.WriteString("By Type:\n")
	b.WriteString("--------\n")
	for _, k := range []storage.Kind{storage.KindText, storage.KindImage, storage.KindFiles} {
		count := s.ByKind[k]
		fmt.Fprintf(&b, "%-8s %5d | %5.1f%%\n", k, count, percent(count, s.TotalEntries))
	}
	b.WriteString("\n")

	if n := min(topN, len(s.TopSources)); n > 0 {
		fmt.Fprintf(&b, "Top %d Sources:\n", n)
		b.WriteString("---------------\n")
		for i, src := range s.TopSources[:n] {
			app := src.App
			if len(app) > 40 {
				app = app[:37] + "..."
			}
			fmt.Fprintf(&b, "%3d. (%3d | %5.1f%%) %s\n", i+1, src.Count, percent(src.Count, s.TotalEntries), app)
		}
		b.WriteString("\n")
	}

	if len(s.TimeDistribution) > 0 {
		b.WriteString("Entries by Hour:\n")
		b.WriteString("----------------\n")
		b.WriteString(formatHourDistribution(s.TimeDistribution, s.TotalEntries))
	}

	return b.String()
}

func percent(count int, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// formatHourDistribution creates a visual histogram of entries by hour
func formatHourDistribution(dist map[int]int, total int64) string {
	maxCount := 0
	for _, count := range dist {
		maxCount = max(maxCount, count)
	}

	var b strings.Builder
	for hour := range 24 {
		count := dist[hour]
		if count == 0 {
			continue
		}

		// Scale to 40 characters max
		barLength := 0
		if maxCount > 0 {
			barLength = (count * 40) / maxCount
		}

		fmt.Fprintf(&b, "%02d:00 (%3d | %5.1f%%) %s\n", hour, count, percent(count, total), strings.Repeat("█", barLength))
	}
	return b.String()
}
