package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

// Client is the sqlite-backed content store collaborator: analyzed content,
// user profiles, engagement history and news articles. Profiles are owned by
// the profile service; this store only reads them back.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS educational_content (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT,
		category TEXT NOT NULL,
		difficulty_level TEXT NOT NULL,
		target_age TEXT,
		source TEXT,
		url TEXT,
		keywords TEXT,
		quality_score REAL DEFAULT 5,
		relevance_score REAL DEFAULT 5,
		educational_score REAL DEFAULT 5,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_content_category ON educational_content(category);
	CREATE INDEX IF NOT EXISTS idx_content_difficulty ON educational_content(difficulty_level);
	CREATE INDEX IF NOT EXISTS idx_content_created ON educational_content(created_at);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		age INTEGER NOT NULL,
		experience_level TEXT NOT NULL,
		interests TEXT NOT NULL,
		risk_tolerance TEXT,
		budget_range TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS engagement_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_engagement_user ON engagement_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_engagement_created ON engagement_events(created_at);

	CREATE TABLE IF NOT EXISTS news_articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT,
		url TEXT,
		source TEXT,
		keywords TEXT,
		published INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_news_published ON news_articles(published);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

type ContentFilters struct {
	Category   string
	Difficulty string
	TargetAge  string
}

func (c *Client) GetContent(ctx context.Context, filters ContentFilters, limit int) ([]models.ContentItem, error) {
	query := `
		SELECT id, title, content, summary, category, difficulty_level, target_age,
		       source, url, keywords, quality_score, relevance_score, educational_score, created_at
		FROM educational_content WHERE 1=1`
	args := []interface{}{}

	if filters.Category != "" {
		query += " AND category = ?"
		args = append(args, filters.Category)
	}
	if filters.Difficulty != "" {
		query += " AND difficulty_level = ?"
		args = append(args, filters.Difficulty)
	}
	if filters.TargetAge != "" {
		query += " AND target_age = ?"
		args = append(args, filters.TargetAge)
	}

	query += " ORDER BY created_at DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query content: %w", err)
	}
	defer rows.Close()

	items := make([]models.ContentItem, 0, limit)
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func (c *Client) GetContentByID(ctx context.Context, id string) (*models.ContentItem, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, content, summary, category, difficulty_level, target_age,
		       source, url, keywords, quality_score, relevance_score, educational_score, created_at
		FROM educational_content WHERE id = ?`, id)

	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) InsertContent(ctx context.Context, item *models.ContentItem) error {
	keywords, _ := json.Marshal(item.Keywords)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO educational_content
			(id, title, content, summary, category, difficulty_level, target_age,
			 source, url, keywords, quality_score, relevance_score, educational_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Content, item.Summary, item.Category,
		item.DifficultyLevel, item.TargetAge, item.Source, item.URL,
		string(keywords), item.QualityScore, item.RelevanceScore,
		item.EducationalScore, item.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT user_id, age, experience_level, interests, risk_tolerance, budget_range
		FROM user_profiles WHERE user_id = ?`, userID)

	var profile models.UserProfile
	var interestsJSON string

	err := row.Scan(&profile.UserID, &profile.Age, &profile.ExperienceLevel,
		&interestsJSON, &profile.RiskTolerance, &profile.BudgetRange)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	if err := json.Unmarshal([]byte(interestsJSON), &profile.Interests); err != nil {
		return nil, fmt.Errorf("failed to decode interests: %w", err)
	}

	return &profile, nil
}

func (c *Client) UpdateUserInterests(ctx context.Context, userID string, interests []string) error {
	data, err := json.Marshal(interests)
	if err != nil {
		return fmt.Errorf("failed to encode interests: %w", err)
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE user_profiles SET interests = ?, updated_at = ? WHERE user_id = ?`,
		string(data), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update interests: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no profile for user %s", userID)
	}
	return nil
}

func (c *Client) GetEngagement(ctx context.Context, userID string, days int) (*models.EngagementRecord, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()

	rows, err := c.db.QueryContext(ctx, `
		SELECT message, created_at FROM engagement_events
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 200`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}
	defer rows.Close()

	record := &models.EngagementRecord{UserID: userID, Days: days}
	for rows.Next() {
		var message string
		var createdAt int64
		if err := rows.Scan(&message, &createdAt); err != nil {
			return nil, err
		}
		record.Messages = append(record.Messages, message)
		record.TotalEvents++
		if ts := time.Unix(createdAt, 0); ts.After(record.LastActivity) {
			record.LastActivity = ts
		}
	}

	return record, rows.Err()
}

func (c *Client) RecordEngagement(ctx context.Context, userID, message string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO engagement_events (user_id, message, created_at) VALUES (?, ?, ?)`,
		userID, message, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record engagement: %w", err)
	}
	return nil
}

func (c *Client) GetRecentNews(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, summary, url, source, keywords, published
		FROM news_articles ORDER BY published DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	articles := make([]models.NewsArticle, 0, limit)
	for rows.Next() {
		var article models.NewsArticle
		var keywordsJSON string
		var published int64

		if err := rows.Scan(&article.ID, &article.Title, &article.Summary,
			&article.URL, &article.Source, &keywordsJSON, &published); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(keywordsJSON), &article.Keywords)
		article.Published = time.Unix(published, 0)
		articles = append(articles, article)
	}

	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContentItem(row rowScanner) (*models.ContentItem, error) {
	var item models.ContentItem
	var keywordsJSON string
	var createdAt int64

	err := row.Scan(&item.ID, &item.Title, &item.Content, &item.Summary,
		&item.Category, &item.DifficultyLevel, &item.TargetAge, &item.Source,
		&item.URL, &keywordsJSON, &item.QualityScore, &item.RelevanceScore,
		&item.EducationalScore, &createdAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(keywordsJSON), &item.Keywords)
	item.CreatedAt = time.Unix(createdAt, 0)

	return &item, nil
}
