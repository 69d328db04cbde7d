package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQueryDB(t *testing.T) *DB {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	entries := []*Entry{
		{Kind: KindText, Content: "hello world", SourceApp: "Terminal"},
		{Kind: KindText, Content: "golang channels", SourceApp: "Browser"},
		{Kind: KindText, Content: "100% discount_code", SourceApp: "Mail"},
		{Kind: KindImage, Content: "Image 10x10", Binary: []byte{1}, SourceApp: "Browser"},
		{Kind: KindFiles, Content: "/home/u/report.pdf", SourceApp: "Files"},
	}
	for i, e := range entries {
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := db.Save(ctx, e)
		require.NoError(t, err)
	}
	return db
}

func contents(results []*Summary) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Content)
	}
	return out
}

func TestParseQuery(t *testing.T) {
	q := parseQuery(`hel app:Term type:img "quoted app: type:`)
	assert.Equal(t, []string{"hel", `"quoted`, "app:", "type:"}, q.Terms)
	assert.Equal(t, []string{"Term"}, q.Apps)
	assert.Equal(t, []string{"image"}, q.Kinds)
	assert.True(t, parseQuery("   ").empty())
}

func TestFTSExpression(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   string
	}{
		{"prefix term", "hel", `"hel"*`},
		{"two terms", "hel wor", `"hel"* AND "wor"*`},
		{"quote escaped", `say"hi`, `"say""hi"*`},
		{"operators are literal", "a OR b NOT c", `"a"* AND "OR"* AND "b"* AND "NOT"* AND "c"*`},
		{"column syntax is literal", "body:x", `"body:x"*`},
		{"app filter", "app:term", `source_app : "term"*`},
		{"type filter alias", "type:pic", `kind : "pic"`},
		{"punctuation only", "* ( )", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ftsExpression(parseQuery(tt.search)))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% a\_b c\\d`, escapeLike(`100% a_b c\d`))
}

func TestQuery_OrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := range PageSize + 20 {
		_, err := db.Save(ctx, textEntry(fmt.Sprintf("entry %03d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	results, err := db.Recent(ctx)
	require.NoError(t, err)
	assert.Len(t, results, PageSize)
	assert.Equal(t, "entry 119", results[0].Content)

	results, err = db.Query(ctx, Filters{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, results, 5)

	results, err = db.Query(ctx, Filters{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, results, PageSize)
}

func TestQuery_Search(t *testing.T) {
	db := seedQueryDB(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"prefix", Filters{Search: "hel"}, []string{"hello world"}},
		{"case insensitive", Filters{Search: "GOLANG"}, []string{"golang channels"}},
		{"all terms required", Filters{Search: "hello chan"}, nil},
		{"app filter", Filters{Search: "app:brow"}, []string{"Image 10x10", "golang channels"}},
		{"app and term", Filters{Search: "app:browser gol"}, []string{"golang channels"}},
		{"type filter", Filters{Search: "type:image"}, []string{"Image 10x10"}},
		{"type alias", Filters{Search: "type:files"}, []string{"/home/u/report.pdf"}},
		{"substring fallback mid-word", Filters{Search: "llo wor"}, []string{"hello world"}},
		{"wildcards are literal", Filters{Search: "100%"}, []string{"100% discount_code"}},
		{"underscore literal", Filters{Contains: "t_c"}, []string{"100% discount_code"}},
		{"percent does not match all", Filters{Contains: "%"}, []string{"100% discount_code"}},
		{"kind field", Filters{Kind: KindFiles}, []string{"/home/u/report.pdf"}},
		{"source field", Filters{SourceApp: "Mail"}, []string{"100% discount_code"}},
		{"hostile syntax", Filters{Search: `") OR 1=1 --`}, nil},
		{"no match", Filters{Search: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := db.Query(ctx, tt.filters)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, results)
				return
			}
			assert.Equal(t, tt.want, contents(results))
		})
	}
}

func TestQuery_IndexFollowsTouch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := textEntry("searchable text", time.Now())
	e.SourceApp = "First"
	_, err := db.Save(ctx, e)
	require.NoError(t, err)

	again := textEntry("searchable text", time.Now().Add(time.Second))
	again.SourceApp = "Second"
	_, err = db.Save(ctx, again)
	require.NoError(t, err)

	results, err := db.Query(ctx, Filters{Search: "app:second"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = db.Query(ctx, Filters{Search: "app:first"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_IncludeArchive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	db := setupTestDB(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := db.Save(ctx, textEntry("ancient note", now.Add(-90*24*time.Hour)))
	require.NoError(t, err)
	_, err = db.Save(ctx, textEntry("fresh note", now))
	require.NoError(t, err)

	moved, err := db.ArchiveOlderThan(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), moved)

	results, err := db.Query(ctx, Filters{Search: "note"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh note"}, contents(results))

	results, err = db.Query(ctx, Filters{Search: "note", IncludeArchive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh note", "ancient note"}, contents(results))
	assert.True(t, results[1].Archived)
}

func TestMergeSummaries(t *testing.T) {
	at := func(s int64) time.Time { return time.Unix(s, 0) }
	a := []*Summary{{ID: 1, CreatedAt: at(10)}, {ID: 2, CreatedAt: at(5)}}
	b := []*Summary{{ID: 3, CreatedAt: at(7), Pinned: true}, {ID: 4, CreatedAt: at(1)}}

	merged := mergeSummaries(a, b, 3)
	require.Len(t, merged, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{merged[0].ID, merged[1].ID, merged[2].ID})
}
