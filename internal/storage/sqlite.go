package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/emaki/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT NOT NULL,
		style TEXT NOT NULL,
		threshold REAL NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		scene_count INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		output_dir TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_stories_created_at ON stories(created_at);

	CREATE TABLE IF NOT EXISTS scenes (
		id TEXT PRIMARY KEY,
		story_id TEXT NOT NULL,
		scene_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		image_path TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (story_id) REFERENCES stories(id) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_scenes_story_index ON scenes(story_id, scene_index);
	`
	_, err := db.Exec(schema)
	return err
}

const storyColumns = `id, title, content, style, threshold, status, error, scene_count, elapsed_ms, output_dir, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*models.Story, error) {
	var story models.Story
	var title, errMsg, outputDir sql.NullString
	if err := row.Scan(&story.ID, &title, &story.Content, &story.Style, &story.Threshold, &story.Status,
		&errMsg, &story.SceneCount, &story.ElapsedMs, &outputDir, &story.CreatedAt, &story.UpdatedAt); err != nil {
		return nil, err
	}
	story.Title = title.String
	story.Error = errMsg.String
	story.OutputDir = outputDir.String
	return &story, nil
}

// CreateStory inserts a story.
func (s *SQLiteStorage) CreateStory(ctx context.Context, story *models.Story) error {
	now := time.Now()
	story.CreatedAt = now
	story.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (`+storyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		story.ID, story.Title, story.Content, story.Style, story.Threshold, story.Status,
		story.Error, story.SceneCount, story.ElapsedMs, story.OutputDir, story.CreatedAt, story.UpdatedAt,
	)
	return err
}

// GetStory returns a story by ID.
func (s *SQLiteStorage) GetStory(ctx context.Context, id string) (*models.Story, error) {
	story, err := scanStory(s.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return story, nil
}

// UpdateStory updates an existing story.
func (s *SQLiteStorage) UpdateStory(ctx context.Context, story *models.Story) error {
	story.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE stories SET title = ?, content = ?, style = ?, threshold = ?, status = ?, error = ?,
		 scene_count = ?, elapsed_ms = ?, output_dir = ?, updated_at = ?
		 WHERE id = ?`,
		story.Title, story.Content, story.Style, story.Threshold, story.Status, story.Error,
		story.SceneCount, story.ElapsedMs, story.OutputDir, story.UpdatedAt, story.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("story %s: %w", story.ID, ErrNotFound)
	}
	return nil
}

// DeleteStory removes a story and its scenes.
func (s *SQLiteStorage) DeleteStory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE story_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListStories returns stories, newest first, with offset and limit.
func (s *SQLiteStorage) ListStories(ctx context.Context, offset, limit int) ([]*models.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM stories ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*models.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// BatchCreateScenes inserts multiple scenes in a transaction.
func (s *SQLiteStorage) BatchCreateScenes(ctx context.Context, scenes []*models.Scene) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scenes (id, story_id, scene_index, text, image_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, scene := range scenes {
		scene.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, scene.ID, scene.StoryID, scene.Index, scene.Text, scene.ImagePath, scene.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanScene(row rowScanner) (*models.Scene, error) {
	var scene models.Scene
	var imagePath sql.NullString
	if err := row.Scan(&scene.ID, &scene.StoryID, &scene.Index, &scene.Text, &imagePath, &scene.CreatedAt); err != nil {
		return nil, err
	}
	scene.ImagePath = imagePath.String
	return &scene, nil
}

// GetScenesByStoryID returns all scenes for a story ordered by scene index.
func (s *SQLiteStorage) GetScenesByStoryID(ctx context.Context, storyID string) ([]*models.Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, scene_index, text, image_path, created_at
		 FROM scenes WHERE story_id = ? ORDER BY scene_index`,
		storyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []*models.Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// GetScene returns the scene at a 1-based index within a story.
func (s *SQLiteStorage) GetScene(ctx context.Context, storyID string, index int) (*models.Scene, error) {
	scene, err := scanScene(s.db.QueryRowContext(ctx,
		`SELECT id, story_id, scene_index, text, image_path, created_at
		 FROM scenes WHERE story_id = ? AND scene_index = ?`, storyID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene %s/%d: %w", storyID, index, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return scene, nil
}

// DeleteScenesByStoryID removes all scenes for a story.
func (s *SQLiteStorage) DeleteScenesByStoryID(ctx context.Context, storyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scenes WHERE story_id = ?`, storyID)
	return err
}

// CountStories returns the total number of stories.
func (s *SQLiteStorage) CountStories(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count)
	return count, err
}

// CountScenes returns the total number of scenes.
func (s *SQLiteStorage) CountScenes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
