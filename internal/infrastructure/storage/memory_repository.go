package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// MemoryRepository is an in-memory Store with the same uniqueness semantics
// as the Postgres repository. Used by orchestrator tests and local runs
// without a database.
type MemoryRepository struct {
	mu          sync.Mutex
	keywords    map[string]domain.Keyword
	videos      map[string]domain.Video
	transcripts map[string]domain.Transcript
	articles    map[string]domain.Article
	runs        map[string]domain.Run
}

var _ ports.Store = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		keywords:    map[string]domain.Keyword{},
		videos:      map[string]domain.Video{},
		transcripts: map[string]domain.Transcript{},
		articles:    map[string]domain.Article{},
		runs:        map[string]domain.Run{},
	}
}

func (m *MemoryRepository) KeywordByID(_ context.Context, id string) (domain.Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keywords[id]
	if !ok {
		return domain.Keyword{}, fmt.Errorf("keyword %s: %w", id, domain.ErrNotFound)
	}
	return k, nil
}

func (m *MemoryRepository) KeywordsByPlatform(_ context.Context, platform, region string) ([]domain.Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Keyword
	for _, k := range m.keywords {
		if k.Platform == platform && k.Region == region {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MemoryRepository) SaveKeyword(_ context.Context, k *domain.Keyword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if k.ID == "" {
		k.ID = uuid.NewString()
		k.CreatedAt = now
	}
	k.UpdatedAt = now
	m.keywords[k.ID] = *k
	return nil
}

func (m *MemoryRepository) VideoByYouTubeID(_ context.Context, youtubeID string) (domain.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.videos {
		if v.YouTubeID == youtubeID {
			return v, nil
		}
	}
	return domain.Video{}, fmt.Errorf("video %s: %w", youtubeID, domain.ErrNotFound)
}

func (m *MemoryRepository) VideoByID(_ context.Context, id string) (domain.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return domain.Video{}, fmt.Errorf("video %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func (m *MemoryRepository) SaveVideo(_ context.Context, v *domain.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()

	// Upsert keyed on the external id, like the unique constraint in
	// Postgres: a second save refreshes counters only.
	for id, existing := range m.videos {
		if existing.YouTubeID == v.YouTubeID {
			existing.Views = v.Views
			existing.Likes = v.Likes
			existing.Comments = v.Comments
			existing.UpdatedAt = now
			m.videos[id] = existing
			*v = existing
			return nil
		}
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	m.videos[v.ID] = *v
	return nil
}

func (m *MemoryRepository) MarkVideoAcquired(_ context.Context, id, mediaPath string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return fmt.Errorf("video %s: %w", id, domain.ErrNotFound)
	}
	v.MediaPath = mediaPath
	v.AcquiredAt = &at
	v.UpdatedAt = time.Now().UTC()
	m.videos[id] = v
	return nil
}

func (m *MemoryRepository) TranscriptFor(_ context.Context, videoID, language string) (domain.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.liveTranscript(videoID, language); ok {
		return t, nil
	}
	return domain.Transcript{}, fmt.Errorf("transcript %s/%s: %w", videoID, language, domain.ErrNotFound)
}

func (m *MemoryRepository) liveTranscript(videoID, language string) (domain.Transcript, bool) {
	for _, t := range m.transcripts {
		if t.VideoID == videoID && t.Language == language && !t.Stale {
			return t, true
		}
	}
	return domain.Transcript{}, false
}

func (m *MemoryRepository) TranscriptByID(_ context.Context, id string) (domain.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return domain.Transcript{}, fmt.Errorf("transcript %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (m *MemoryRepository) InsertTranscript(_ context.Context, t *domain.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.liveTranscript(t.VideoID, t.Language); exists && !t.Stale {
		return fmt.Errorf("transcript %s/%s: %w", t.VideoID, t.Language, domain.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	m.transcripts[t.ID] = *t
	return nil
}

func (m *MemoryRepository) MarkTranscriptStale(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return fmt.Errorf("transcript %s: %w", id, domain.ErrNotFound)
	}
	t.Stale = true
	t.UpdatedAt = time.Now().UTC()
	m.transcripts[id] = t
	return nil
}

func (m *MemoryRepository) InsertArticle(_ context.Context, a *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	video, ok := m.videos[a.VideoID]
	if !ok {
		return fmt.Errorf("video %s: %w", a.VideoID, domain.ErrNotFound)
	}
	transcript, ok := m.transcripts[a.TranscriptID]
	if !ok {
		return fmt.Errorf("transcript %s: %w", a.TranscriptID, domain.ErrNotFound)
	}
	if transcript.VideoID != a.VideoID {
		return fmt.Errorf("transcript %s belongs to video %s, not %s: %w",
			a.TranscriptID, transcript.VideoID, a.VideoID, domain.ErrIntegrity)
	}
	if video.KeywordID != a.KeywordID {
		return fmt.Errorf("video %s belongs to keyword %s, not %s: %w",
			a.VideoID, video.KeywordID, a.KeywordID, domain.ErrIntegrity)
	}
	if !a.Superseded {
		for _, existing := range m.articles {
			if existing.VideoID == a.VideoID && existing.TranscriptID == a.TranscriptID &&
				existing.Style == a.Style && !existing.Superseded {
				return fmt.Errorf("article %s/%s/%s: %w",
					a.VideoID, a.TranscriptID, a.Style, domain.ErrAlreadyExists)
			}
		}
	}

	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	m.articles[a.ID] = *a
	return nil
}

func (m *MemoryRepository) ArticlesByVideo(_ context.Context, videoID string) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if a.VideoID == videoID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) SetArticlePublished(_ context.Context, id string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	a.Published = published
	a.UpdatedAt = time.Now().UTC()
	m.articles[id] = a
	return nil
}

func (m *MemoryRepository) MarkArticleSuperseded(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	a.Superseded = true
	a.UpdatedAt = time.Now().UTC()
	m.articles[id] = a
	return nil
}

func (m *MemoryRepository) RunByVideo(_ context.Context, videoID string) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.VideoID == videoID {
			// Clone so callers never share the stored StyleResults map.
			return cloneRun(r), nil
		}
	}
	return domain.Run{}, fmt.Errorf("run for video %s: %w", videoID, domain.ErrNotFound)
}

func (m *MemoryRepository) SaveRun(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()

	for id, existing := range m.runs {
		if existing.VideoID == r.VideoID {
			r.ID = id
			r.CreatedAt = existing.CreatedAt
			r.UpdatedAt = now
			m.runs[id] = cloneRun(*r)
			return nil
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	m.runs[r.ID] = cloneRun(*r)
	return nil
}

func (m *MemoryRepository) IncompleteRuns(_ context.Context) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, r := range m.runs {
		if !r.Terminal() {
			out = append(out, cloneRun(r))
		}
	}
	return out, nil
}

func cloneRun(r domain.Run) domain.Run {
	if r.StyleResults != nil {
		results := make(map[domain.Style]domain.StyleResult, len(r.StyleResults))
		for k, v := range r.StyleResults {
			results[k] = v
		}
		r.StyleResults = results
	}
	return r
}
