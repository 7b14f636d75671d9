// Command migrate-legacy-uploads seeds the videos/upload_sessions tables
// from a JSON snapshot, for backfilling records out of a predecessor
// system into this one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
)

// snapshot is the legacy export shape: one row per video plus, for videos
// still mid-upload, the session that owns it.
type snapshot struct {
	Videos   []legacyVideo   `json:"videos"`
	Sessions []legacySession `json:"sessions"`
}

type legacyVideo struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	SourceURL       string  `json:"sourceUrl"`
	SourceSize      int64   `json:"sourceSize"`
	SourceChecksum  string  `json:"sourceChecksum"`
	ManifestURL     string  `json:"manifestUrl"`
	DurationS       *float64 `json:"durationSeconds"`
	Width           *int    `json:"width"`
	Height          *int    `json:"height"`
	Codec           string  `json:"codec"`
	UploadSessionID string  `json:"uploadSessionId"`
	IsPublic        bool    `json:"isPublic"`
	CreatedAt       time.Time `json:"createdAt"`
}

type legacySession struct {
	ID                string    `json:"id"`
	VideoID           string    `json:"videoId"`
	MultipartUploadID string    `json:"multipartUploadId"`
	TotalParts        int       `json:"totalParts"`
	Status            string    `json:"status"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

func main() {
	jsonPath := flag.String("json", "", "path to the legacy JSON snapshot to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if strings.TrimSpace(*jsonPath) == "" {
		logger.Error("--json is required")
		os.Exit(1)
	}

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("VIDEOINGEST_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, VIDEOINGEST_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	snap, err := loadSnapshot(*jsonPath)
	if err != nil {
		logger.Error("failed to load legacy snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded legacy snapshot", "path", *jsonPath, "videos", len(snap.Videos), "sessions", len(snap.Sessions))

	ctx := context.Background()
	store, err := videostore.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := importSnapshot(ctx, store, snap); err != nil {
		logger.Error("failed to import snapshot", "error", err)
		os.Exit(1)
	}

	if err := verifyCounts(ctx, dsn, len(snap.Videos), len(snap.Sessions)); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "videos", len(snap.Videos), "sessions", len(snap.Sessions))
}

func loadSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("parse snapshot json: %w", err)
	}
	return snap, nil
}

func importSnapshot(ctx context.Context, store videostore.Store, snap snapshot) error {
	for _, lv := range snap.Videos {
		v := videomodel.Video{
			ID:              lv.ID,
			Title:           lv.Title,
			Status:          videomodel.VideoStatus(lv.Status),
			SourceURL:       lv.SourceURL,
			SourceSize:      lv.SourceSize,
			SourceChecksum:  lv.SourceChecksum,
			ManifestURL:     lv.ManifestURL,
			DurationS:       lv.DurationS,
			Width:           lv.Width,
			Height:          lv.Height,
			Codec:           lv.Codec,
			UploadSessionID: lv.UploadSessionID,
			IsPublic:        lv.IsPublic,
			CreatedAt:       lv.CreatedAt,
			UpdatedAt:       lv.CreatedAt,
		}
		if err := store.CreateVideo(ctx, v); err != nil {
			return fmt.Errorf("import video %s: %w", lv.ID, err)
		}
	}

	for _, ls := range snap.Sessions {
		s := videomodel.UploadSession{
			ID:                ls.ID,
			VideoID:           ls.VideoID,
			MultipartUploadID: ls.MultipartUploadID,
			TotalParts:        ls.TotalParts,
			Status:            videomodel.SessionStatus(ls.Status),
			ExpiresAt:         ls.ExpiresAt,
			CreatedAt:         ls.CreatedAt,
		}
		if err := store.CreateSession(ctx, s); err != nil {
			return fmt.Errorf("import session %s: %w", ls.ID, err)
		}
		if err := store.SetVideoUploadSession(ctx, ls.VideoID, ls.ID); err != nil {
			return fmt.Errorf("link session %s to video %s: %w", ls.ID, ls.VideoID, err)
		}
	}
	return nil
}

func verifyCounts(ctx context.Context, dsn string, wantVideos, wantSessions int) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"videos", "SELECT COUNT(*) FROM videos", wantVideos},
		{"upload_sessions", "SELECT COUNT(*) FROM upload_sessions", wantSessions},
	}
	for _, check := range checks {
		var actual int
		if err := pool.QueryRow(ctx, check.query).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.name, err)
		}
		if actual != check.expected {
			return fmt.Errorf("mismatch for %s: expected %d, got %d", check.name, check.expected, actual)
		}
	}
	return nil
}
