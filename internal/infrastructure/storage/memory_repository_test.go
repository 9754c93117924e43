package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"ytdigest/internal/domain"
)

func seedVideo(t *testing.T, store *MemoryRepository, youtubeID, keywordID string) domain.Video {
	t.Helper()
	video := domain.Video{
		YouTubeID: youtubeID,
		KeywordID: keywordID,
		Title:     "t",
		Duration:  time.Minute,
	}
	if err := store.SaveVideo(context.Background(), &video); err != nil {
		t.Fatalf("save video: %v", err)
	}
	return video
}

func seedTranscript(t *testing.T, store *MemoryRepository, videoID, language string) domain.Transcript {
	t.Helper()
	tr := domain.Transcript{VideoID: videoID, Language: language, Text: "text"}
	if err := store.InsertTranscript(context.Background(), &tr); err != nil {
		t.Fatalf("insert transcript: %v", err)
	}
	return tr
}

func TestKeywordsByPlatformOrderedByRank(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	for _, k := range []domain.Keyword{
		{Keyword: "golang", Rank: 2, Platform: "youtube", Region: "US"},
		{Keyword: "go testing", Rank: 1, Platform: "youtube", Region: "US"},
		{Keyword: "rust", Rank: 1, Platform: "youtube", Region: "DE"},
	} {
		k := k
		if err := store.SaveKeyword(ctx, &k); err != nil {
			t.Fatalf("save keyword: %v", err)
		}
	}

	keywords, err := store.KeywordsByPlatform(ctx, "youtube", "US")
	if err != nil {
		t.Fatalf("KeywordsByPlatform: %v", err)
	}
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(keywords))
	}
	if keywords[0].Keyword != "go testing" || keywords[1].Keyword != "golang" {
		t.Fatalf("rank ordering lost: %v", keywords)
	}
}

func TestSaveVideoUpsertRefreshesCountersOnly(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	first := seedVideo(t, store, "abc", "kw-1")

	update := domain.Video{
		YouTubeID: "abc",
		KeywordID: "kw-other",
		Title:     "changed title",
		Views:     42,
	}
	if err := store.SaveVideo(ctx, &update); err != nil {
		t.Fatalf("second save: %v", err)
	}

	stored, err := store.VideoByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Title != "t" || stored.KeywordID != "kw-1" {
		t.Fatalf("content fields must be immutable: %+v", stored)
	}
	if stored.Views != 42 {
		t.Fatalf("counters must refresh, views = %d", stored.Views)
	}
	if update.ID != first.ID {
		t.Fatalf("upsert must surface the existing row id")
	}
}

func TestTranscriptLiveUniqueness(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	video := seedVideo(t, store, "abc", "kw-1")
	first := seedTranscript(t, store, video.ID, "en")

	dup := domain.Transcript{VideoID: video.ID, Language: "en", Text: "other"}
	if err := store.InsertTranscript(ctx, &dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate live transcript: got %v, want ErrAlreadyExists", err)
	}

	// A different language coexists.
	seedTranscript(t, store, video.ID, "de")

	// Marking the old row stale admits a replacement.
	if err := store.MarkTranscriptStale(ctx, first.ID); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	replacement := domain.Transcript{VideoID: video.ID, Language: "en", Text: "new"}
	if err := store.InsertTranscript(ctx, &replacement); err != nil {
		t.Fatalf("replacement insert: %v", err)
	}

	live, err := store.TranscriptFor(ctx, video.ID, "en")
	if err != nil {
		t.Fatalf("live lookup: %v", err)
	}
	if live.ID != replacement.ID {
		t.Fatalf("live transcript = %s, want %s", live.ID, replacement.ID)
	}
}

func TestInsertArticleIntegrity(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	video := seedVideo(t, store, "abc", "kw-1")
	other := seedVideo(t, store, "def", "kw-2")
	tr := seedTranscript(t, store, video.ID, "en")
	otherTr := seedTranscript(t, store, other.ID, "en")

	good := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleBlog, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &good); err != nil {
		t.Fatalf("consistent article rejected: %v", err)
	}

	wrongTranscript := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: otherTr.ID,
		Style: domain.StyleWiki, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &wrongTranscript); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("foreign transcript: got %v, want ErrIntegrity", err)
	}

	wrongKeyword := domain.Article{
		KeywordID: "kw-2", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleWiki, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &wrongKeyword); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("foreign keyword: got %v, want ErrIntegrity", err)
	}
}

func TestArticleLiveUniqueness(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	video := seedVideo(t, store, "abc", "kw-1")
	tr := seedTranscript(t, store, video.ID, "en")

	first := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleBlog, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleBlog, Language: "en", Title: "again", Content: "c",
	}
	if err := store.InsertArticle(ctx, &dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate live article: got %v, want ErrAlreadyExists", err)
	}

	// Another style for the same transcript coexists.
	wiki := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleWiki, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &wiki); err != nil {
		t.Fatalf("other style rejected: %v", err)
	}

	// Superseding the old row admits a regenerated one.
	if err := store.MarkArticleSuperseded(ctx, first.ID); err != nil {
		t.Fatalf("mark superseded: %v", err)
	}
	regen := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleBlog, Language: "en", Title: "regenerated", Content: "c",
	}
	if err := store.InsertArticle(ctx, &regen); err != nil {
		t.Fatalf("regenerated insert: %v", err)
	}

	articles, err := store.ArticlesByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	liveBlogs := 0
	for _, a := range articles {
		if a.Style == domain.StyleBlog && !a.Superseded {
			liveBlogs++
		}
	}
	if liveBlogs != 1 {
		t.Fatalf("expected 1 live blog article, got %d", liveBlogs)
	}
}

func TestRunReadsReturnIsolatedCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()

	run := domain.Run{
		VideoID: "vid-1",
		State:   domain.StateGenerating,
		Styles:  []domain.Style{domain.StyleBlog},
		StyleResults: map[domain.Style]domain.StyleResult{
			domain.StyleBlog: {Status: domain.StylePending},
		},
	}
	if err := store.SaveRun(ctx, &run); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.RunByVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.StyleResults[domain.StyleBlog] = domain.StyleResult{Status: domain.StyleDone, ArticleID: "a-1"}

	reread, err := store.RunByVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if reread.StyleResults[domain.StyleBlog].Status != domain.StylePending {
		t.Fatalf("unsaved mutation visible in the store: %+v", reread.StyleResults)
	}

	incomplete, err := store.IncompleteRuns(ctx)
	if err != nil {
		t.Fatalf("incomplete: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("expected 1 incomplete run, got %d", len(incomplete))
	}
	incomplete[0].StyleResults[domain.StyleBlog] = domain.StyleResult{Status: domain.StyleFailed}

	reread, _ = store.RunByVideo(ctx, "vid-1")
	if reread.StyleResults[domain.StyleBlog].Status != domain.StylePending {
		t.Fatalf("incomplete-runs mutation visible in the store: %+v", reread.StyleResults)
	}
}

func TestSetArticlePublished(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()
	video := seedVideo(t, store, "abc", "kw-1")
	tr := seedTranscript(t, store, video.ID, "en")

	a := domain.Article{
		KeywordID: "kw-1", VideoID: video.ID, TranscriptID: tr.ID,
		Style: domain.StyleBlog, Language: "en", Title: "t", Content: "c",
	}
	if err := store.InsertArticle(ctx, &a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.SetArticlePublished(ctx, a.ID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	articles, err := store.ArticlesByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(articles) != 1 || !articles[0].Published {
		t.Fatalf("publish flag not persisted: %+v", articles)
	}

	if err := store.SetArticlePublished(ctx, "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown article: got %v, want ErrNotFound", err)
	}
}

func TestRunUpsertAndIncomplete(t *testing.T) {
	t.Parallel()

	store := NewMemoryRepository()
	ctx := context.Background()

	run := domain.Run{
		VideoID: "vid-1",
		State:   domain.StatePending,
		Styles:  domain.AllStyles(),
		StyleResults: map[domain.Style]domain.StyleResult{
			domain.StyleBlog: {Status: domain.StylePending},
		},
	}
	if err := store.SaveRun(ctx, &run); err != nil {
		t.Fatalf("save: %v", err)
	}

	run.State = domain.StateTranscribed
	if err := store.SaveRun(ctx, &run); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := store.RunByVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != run.ID || loaded.State != domain.StateTranscribed {
		t.Fatalf("upsert lost state: %+v", loaded)
	}

	incomplete, err := store.IncompleteRuns(ctx)
	if err != nil {
		t.Fatalf("incomplete: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("expected 1 incomplete run, got %d", len(incomplete))
	}

	run.State = domain.StateComplete
	if err := store.SaveRun(ctx, &run); err != nil {
		t.Fatalf("complete: %v", err)
	}
	incomplete, _ = store.IncompleteRuns(ctx)
	if len(incomplete) != 0 {
		t.Fatalf("completed run still listed: %v", incomplete)
	}
}
