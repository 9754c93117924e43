package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// pgUniqueViolation is the Postgres error code for unique constraint hits.
const pgUniqueViolation = "23505"

// PostgresRepository persists pipeline entities into Postgres.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.Store = (*PostgresRepository)(nil)

// Open connects to Postgres using the pgx stdlib driver.
func Open(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresRepository(db), nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate applies the schema. Safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// KeywordByID loads one keyword row.
func (r *PostgresRepository) KeywordByID(ctx context.Context, id string) (domain.Keyword, error) {
	query := r.sb.
		Select("id", "keyword", "rank", "score", "platform", "region", "metadata", "created_at", "updated_at").
		From("keywords").
		Where(sq.Eq{"id": id})

	var (
		k       domain.Keyword
		rawMeta []byte
	)
	err := query.RunWith(r.db).QueryRowContext(ctx).
		Scan(&k.ID, &k.Keyword, &k.Rank, &k.Score, &k.Platform, &k.Region, &rawMeta, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Keyword{}, fmt.Errorf("keyword %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Keyword{}, fmt.Errorf("query keyword: %w", err)
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &k.Metadata); err != nil {
			return domain.Keyword{}, fmt.Errorf("decode keyword metadata: %w", err)
		}
	}
	return k, nil
}

// KeywordsByPlatform lists keywords for one platform/region by rank.
func (r *PostgresRepository) KeywordsByPlatform(ctx context.Context, platform, region string) ([]domain.Keyword, error) {
	query := r.sb.
		Select("id", "keyword", "rank", "score", "platform", "region", "metadata", "created_at", "updated_at").
		From("keywords").
		Where(sq.Eq{"platform": platform, "region": region}).
		OrderBy("rank")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var keywords []domain.Keyword
	for rows.Next() {
		var (
			k       domain.Keyword
			rawMeta []byte
		)
		if err := rows.Scan(&k.ID, &k.Keyword, &k.Rank, &k.Score, &k.Platform,
			&k.Region, &rawMeta, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &k.Metadata); err != nil {
				return nil, fmt.Errorf("decode keyword metadata: %w", err)
			}
		}
		keywords = append(keywords, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return keywords, nil
}

// SaveKeyword inserts a keyword or refreshes its rank/score.
func (r *PostgresRepository) SaveKeyword(ctx context.Context, k *domain.Keyword) error {
	now := time.Now().UTC()
	if k.ID == "" {
		k.ID = uuid.NewString()
		k.CreatedAt = now
	}
	k.UpdatedAt = now

	meta, err := json.Marshal(orEmptyMap(k.Metadata))
	if err != nil {
		return fmt.Errorf("encode keyword metadata: %w", err)
	}

	query := r.sb.
		Insert("keywords").
		Columns("id", "keyword", "rank", "score", "platform", "region", "metadata", "created_at", "updated_at").
		Values(k.ID, k.Keyword, k.Rank, k.Score, k.Platform, k.Region, meta, k.CreatedAt, k.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE
		        SET rank = EXCLUDED.rank,
		            score = EXCLUDED.score,
		            updated_at = EXCLUDED.updated_at`)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert keyword: %w", err)
	}
	return nil
}

const videoColumns = "id, keyword_id, youtube_id, url, title, category, thumbnail_url, duration_secs, views, likes, comments, language, media_path, acquired_at, created_at, updated_at"

func scanVideo(row sq.RowScanner) (domain.Video, error) {
	var (
		v        domain.Video
		duration int64
		acquired sql.NullTime
	)
	err := row.Scan(&v.ID, &v.KeywordID, &v.YouTubeID, &v.URL, &v.Title, &v.Category,
		&v.ThumbnailURL, &duration, &v.Views, &v.Likes, &v.Comments, &v.Language,
		&v.MediaPath, &acquired, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return domain.Video{}, err
	}
	v.Duration = time.Duration(duration) * time.Second
	if acquired.Valid {
		t := acquired.Time
		v.AcquiredAt = &t
	}
	return v, nil
}

// VideoByYouTubeID loads a video by its external id.
func (r *PostgresRepository) VideoByYouTubeID(ctx context.Context, youtubeID string) (domain.Video, error) {
	return r.video(ctx, sq.Eq{"youtube_id": youtubeID})
}

// VideoByID loads a video row.
func (r *PostgresRepository) VideoByID(ctx context.Context, id string) (domain.Video, error) {
	return r.video(ctx, sq.Eq{"id": id})
}

func (r *PostgresRepository) video(ctx context.Context, pred any) (domain.Video, error) {
	query := r.sb.Select(strings.Split(videoColumns, ", ")...).From("videos").Where(pred)
	v, err := scanVideo(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Video{}, fmt.Errorf("video %v: %w", pred, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Video{}, fmt.Errorf("query video: %w", err)
	}
	return v, nil
}

// SaveVideo inserts a video or refreshes its engagement counters. Content
// fields keep their first-write values.
func (r *PostgresRepository) SaveVideo(ctx context.Context, v *domain.Video) error {
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = uuid.NewString()
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	query := r.sb.
		Insert("videos").
		Columns(strings.Split(videoColumns, ", ")...).
		Values(v.ID, v.KeywordID, v.YouTubeID, v.URL, v.Title, v.Category,
			v.ThumbnailURL, int64(v.Duration/time.Second), v.Views, v.Likes,
			v.Comments, v.Language, v.MediaPath, v.AcquiredAt, v.CreatedAt, v.UpdatedAt).
		Suffix(`ON CONFLICT (youtube_id) DO UPDATE
		        SET views = EXCLUDED.views,
		            likes = EXCLUDED.likes,
		            comments = EXCLUDED.comments,
		            updated_at = EXCLUDED.updated_at`)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	return nil
}

// MarkVideoAcquired records a completed media acquisition.
func (r *PostgresRepository) MarkVideoAcquired(ctx context.Context, id, mediaPath string, at time.Time) error {
	query := r.sb.
		Update("videos").
		Set("media_path", mediaPath).
		Set("acquired_at", at).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark acquired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const transcriptColumns = "id, video_id, language, text, source, coverage, gaps, low_confidence, stale, created_at, updated_at"

func scanTranscript(row sq.RowScanner) (domain.Transcript, error) {
	var (
		t       domain.Transcript
		rawGaps []byte
	)
	err := row.Scan(&t.ID, &t.VideoID, &t.Language, &t.Text, &t.Source, &t.Coverage,
		&rawGaps, &t.LowConfidence, &t.Stale, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Transcript{}, err
	}
	if len(rawGaps) > 0 {
		if err := json.Unmarshal(rawGaps, &t.Gaps); err != nil {
			return domain.Transcript{}, fmt.Errorf("decode gaps: %w", err)
		}
	}
	return t, nil
}

// TranscriptFor returns the live transcript for (video, language).
func (r *PostgresRepository) TranscriptFor(ctx context.Context, videoID, language string) (domain.Transcript, error) {
	query := r.sb.Select(strings.Split(transcriptColumns, ", ")...).
		From("transcripts").
		Where(sq.Eq{"video_id": videoID, "language": language, "stale": false})

	t, err := scanTranscript(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transcript{}, fmt.Errorf("transcript %s/%s: %w", videoID, language, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("query transcript: %w", err)
	}
	return t, nil
}

// TranscriptByID loads one transcript row.
func (r *PostgresRepository) TranscriptByID(ctx context.Context, id string) (domain.Transcript, error) {
	query := r.sb.Select(strings.Split(transcriptColumns, ", ")...).
		From("transcripts").
		Where(sq.Eq{"id": id})

	t, err := scanTranscript(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transcript{}, fmt.Errorf("transcript %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("query transcript: %w", err)
	}
	return t, nil
}

// InsertTranscript creates a transcript row. The partial unique index over
// live (video, language) pairs rejects concurrent duplicates; the conflict
// surfaces as domain.ErrAlreadyExists so callers can load the winner.
func (r *PostgresRepository) InsertTranscript(ctx context.Context, t *domain.Transcript) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	gaps, err := json.Marshal(orEmptyGaps(t.Gaps))
	if err != nil {
		return fmt.Errorf("encode gaps: %w", err)
	}

	query := r.sb.
		Insert("transcripts").
		Columns(strings.Split(transcriptColumns, ", ")...).
		Values(t.ID, t.VideoID, t.Language, t.Text, t.Source, t.Coverage,
			gaps, t.LowConfidence, t.Stale, t.CreatedAt, t.UpdatedAt)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("transcript %s/%s: %w", t.VideoID, t.Language, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// MarkTranscriptStale supersedes a transcript without deleting it.
func (r *PostgresRepository) MarkTranscriptStale(ctx context.Context, id string) error {
	query := r.sb.
		Update("transcripts").
		Set("stale", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transcript %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// InsertArticle creates an article row after verifying the referenced
// keyword, video, and transcript are mutually consistent. The partial
// unique index over non-superseded (video, transcript, style) rows rejects
// duplicates from concurrent or resumed generation; the conflict surfaces
// as domain.ErrAlreadyExists.
func (r *PostgresRepository) InsertArticle(ctx context.Context, a *domain.Article) error {
	video, err := r.VideoByID(ctx, a.VideoID)
	if err != nil {
		return err
	}
	transcript, err := r.TranscriptByID(ctx, a.TranscriptID)
	if err != nil {
		return err
	}
	if transcript.VideoID != a.VideoID {
		return fmt.Errorf("transcript %s belongs to video %s, not %s: %w",
			a.TranscriptID, transcript.VideoID, a.VideoID, domain.ErrIntegrity)
	}
	if video.KeywordID != a.KeywordID {
		return fmt.Errorf("video %s belongs to keyword %s, not %s: %w",
			a.VideoID, video.KeywordID, a.KeywordID, domain.ErrIntegrity)
	}

	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	seo, err := json.Marshal(a.SEO)
	if err != nil {
		return fmt.Errorf("encode seo metadata: %w", err)
	}
	tags, err := encodeTags(a.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := r.sb.
		Insert("articles").
		Columns("id", "keyword_id", "video_id", "transcript_id", "style", "article_language",
			"title", "content", "tags", "seo_metadata", "published", "superseded", "created_at", "updated_at").
		Values(a.ID, a.KeywordID, a.VideoID, a.TranscriptID, string(a.Style), a.Language,
			a.Title, a.Content, tags, seo, a.Published, a.Superseded, a.CreatedAt, a.UpdatedAt)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("article %s/%s/%s: %w", a.VideoID, a.TranscriptID, a.Style, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// ArticlesByVideo lists all generated articles for one video.
func (r *PostgresRepository) ArticlesByVideo(ctx context.Context, videoID string) ([]domain.Article, error) {
	query := r.sb.
		Select("id", "keyword_id", "video_id", "transcript_id", "style", "article_language",
			"title", "content", "tags", "seo_metadata", "published", "superseded", "created_at", "updated_at").
		From("articles").
		Where(sq.Eq{"video_id": videoID}).
		OrderBy("created_at")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var (
			a       domain.Article
			style   string
			rawTags []byte
			rawSEO  []byte
		)
		if err := rows.Scan(&a.ID, &a.KeywordID, &a.VideoID, &a.TranscriptID, &style,
			&a.Language, &a.Title, &a.Content, &rawTags, &rawSEO, &a.Published,
			&a.Superseded, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Style = domain.Style(style)
		if a.Tags, err = decodeTags(rawTags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if len(rawSEO) > 0 {
			if err := json.Unmarshal(rawSEO, &a.SEO); err != nil {
				return nil, fmt.Errorf("decode seo metadata: %w", err)
			}
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

// SetArticlePublished toggles the publish flag. Article content stays
// immutable.
func (r *PostgresRepository) SetArticlePublished(ctx context.Context, id string, published bool) error {
	query := r.sb.
		Update("articles").
		Set("published", published).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// MarkArticleSuperseded retires an article without deleting it, freeing the
// (video, transcript, style) slot for a regenerated row.
func (r *PostgresRepository) MarkArticleSuperseded(ctx context.Context, id string) error {
	query := r.sb.
		Update("articles").
		Set("superseded", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RunByVideo loads the pipeline run record for a video.
func (r *PostgresRepository) RunByVideo(ctx context.Context, videoID string) (domain.Run, error) {
	query := r.sb.
		Select("id", "video_id", "transcript_id", "language", "state", "failed_stage",
			"styles", "style_state", "last_error", "created_at", "updated_at").
		From("pipeline_runs").
		Where(sq.Eq{"video_id": videoID})

	run, err := scanRun(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("run for video %s: %w", videoID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

func scanRun(row sq.RowScanner) (domain.Run, error) {
	var (
		run      domain.Run
		state    string
		stage    string
		styles   string
		rawStyle []byte
	)
	err := row.Scan(&run.ID, &run.VideoID, &run.TranscriptID, &run.Language, &state,
		&stage, &styles, &rawStyle, &run.LastError, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return domain.Run{}, err
	}
	run.State = domain.RunState(state)
	run.FailedStage = domain.Stage(stage)
	if styles != "" {
		for _, s := range strings.Split(styles, ",") {
			run.Styles = append(run.Styles, domain.Style(s))
		}
	}
	if len(rawStyle) > 0 {
		if err := json.Unmarshal(rawStyle, &run.StyleResults); err != nil {
			return domain.Run{}, fmt.Errorf("decode style state: %w", err)
		}
	}
	return run, nil
}

// SaveRun upserts the run record. Called at every state transition, after
// the stage's output row has committed.
func (r *PostgresRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.NewString()
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	styleState, err := json.Marshal(orEmptyResults(run.StyleResults))
	if err != nil {
		return fmt.Errorf("encode style state: %w", err)
	}
	styles := make([]string, 0, len(run.Styles))
	for _, s := range run.Styles {
		styles = append(styles, string(s))
	}

	query := r.sb.
		Insert("pipeline_runs").
		Columns("id", "video_id", "transcript_id", "language", "state", "failed_stage",
			"styles", "style_state", "last_error", "created_at", "updated_at").
		Values(run.ID, run.VideoID, run.TranscriptID, run.Language, string(run.State),
			string(run.FailedStage), strings.Join(styles, ","), styleState,
			run.LastError, run.CreatedAt, run.UpdatedAt).
		Suffix(`ON CONFLICT (video_id) DO UPDATE
		        SET transcript_id = EXCLUDED.transcript_id,
		            language = EXCLUDED.language,
		            state = EXCLUDED.state,
		            failed_stage = EXCLUDED.failed_stage,
		            styles = EXCLUDED.styles,
		            style_state = EXCLUDED.style_state,
		            last_error = EXCLUDED.last_error,
		            updated_at = EXCLUDED.updated_at`)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// IncompleteRuns lists runs that have not reached a terminal state, for
// resumption after a restart.
func (r *PostgresRepository) IncompleteRuns(ctx context.Context) ([]domain.Run, error) {
	query := r.sb.
		Select("id", "video_id", "transcript_id", "language", "state", "failed_stage",
			"styles", "style_state", "last_error", "created_at", "updated_at").
		From("pipeline_runs").
		Where(sq.NotEq{"state": []string{string(domain.StateComplete), string(domain.StateFailed)}}).
		OrderBy("created_at")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query incomplete runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

// encodeTags stores tags as a JSON array so tag values may contain any
// character, commas included.
func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func decodeTags(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyGaps(g []domain.Gap) []domain.Gap {
	if g == nil {
		return []domain.Gap{}
	}
	return g
}

func orEmptyResults(m map[domain.Style]domain.StyleResult) map[domain.Style]domain.StyleResult {
	if m == nil {
		return map[domain.Style]domain.StyleResult{}
	}
	return m
}
