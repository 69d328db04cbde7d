package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spideyz0r/clipring/pkg/storage"
	"github.com/spideyz0r/clipring/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestExportText(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedText(t, db, base, "first copy", "second copy", "third copy")

	var buf bytes.Buffer
	err := Export(context.Background(), db, &buf, Options{Format: FormatText})
	require.NoError(t, err)

	output := buf.String()
	assert.Equal(t, "third copy\n\nsecond copy\n\nfirst copy\n\n", output)
}

func TestExportJSON(t *testing.T) {
	db := testutil.OpenStore(t)
	seeded := testutil.SeedText(t, db, base, "alpha", "beta")
	require.NoError(t, db.TogglePin(context.Background(), seeded[0].ID, true))

	var buf bytes.Buffer
	err := Export(context.Background(), db, &buf, Options{Format: FormatJSON})
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	// pinned entries come first
	assert.Equal(t, "alpha", got[0]["content"])
	assert.Equal(t, true, got[0]["pinned"])
	assert.Equal(t, "text", got[0]["kind"])
	assert.Equal(t, "Test", got[0]["source_app"])
	assert.Equal(t, "beta", got[1]["content"])
	assert.Equal(t, false, got[1]["pinned"])
	assert.NotContains(t, got[1], "archived")
}

func TestExportCSV(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedText(t, db, base, "plain", "with, comma\nand newline")

	var buf bytes.Buffer
	err := Export(context.Background(), db, &buf, Options{Format: FormatCSV})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"id", "created_at", "kind", "content", "pinned", "source_app", "source_process", "size"}, records[0])
	assert.Equal(t, "with, comma\nand newline", records[1][3])
	assert.Equal(t, "plain", records[2][3])
	assert.Equal(t, "false", records[2][4])
}

func TestExportWithFilters(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedText(t, db, base, "deploy staging", "lunch order", "deploy prod")

	var buf bytes.Buffer
	err := Export(context.Background(), db, &buf, Options{
		Format:  FormatText,
		Filters: storage.Filters{Search: "deploy"},
	})
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "deploy staging")
	assert.Contains(t, output, "deploy prod")
	assert.NotContains(t, output, "lunch")
}

func TestExportEmpty(t *testing.T) {
	db := testutil.OpenStore(t)

	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), db, &buf, Options{Format: FormatJSON}))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestExportUnsupportedFormat(t *testing.T) {
	db := testutil.OpenStore(t)

	var buf bytes.Buffer
	err := Export(context.Background(), db, &buf, Options{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"txt", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExport_LongEntryIsComplete(t *testing.T) {
	db := testutil.OpenStore(t)
	long := strings.Repeat("x", storage.SummaryTextLimit+50)
	testutil.SeedText(t, db, base, long)

	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), db, &buf, Options{Format: FormatText}))
	assert.Equal(t, long+"\n\n", buf.String())

	buf.Reset()
	require.NoError(t, Export(context.Background(), db, &buf, Options{
		Format:  FormatText,
		Filters: storage.Filters{Contains: "xxx"},
	}))
	assert.Equal(t, long+"\n\n", buf.String())
}
