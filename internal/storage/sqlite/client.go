package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/storage/models"
	"github.com/eda-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
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
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		row_count INTEGER DEFAULT 0,
		uploaded_at INTEGER NOT NULL,
		profiled_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets(uploaded_at);

	CREATE TABLE IF NOT EXISTS profile_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id TEXT NOT NULL,
		rows INTEGER NOT NULL,
		columns INTEGER NOT NULL,
		warnings INTEGER DEFAULT 0,
		duration_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (dataset_id) REFERENCES datasets(id)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON profile_runs(dataset_id);

	CREATE TABLE IF NOT EXISTS ask_history (
		id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		question TEXT NOT NULL,
		intent_kind TEXT,
		answer TEXT,
		plot_key TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ask_dataset ON ask_history(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_ask_created ON ask_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertDataset(ds *models.Dataset) error {
	query := `
		INSERT INTO datasets (id, filename, byte_size, uploaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			byte_size = excluded.byte_size,
			uploaded_at = excluded.uploaded_at,
			row_count = 0,
			profiled_at = NULL
	`

	_, err := c.db.Exec(query, ds.ID, ds.Filename, ds.ByteSize, ds.UploadedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert dataset: %w", err)
	}

	logger.Debug("Dataset registered", zap.String("dataset", ds.ID))
	return nil
}

func (c *Client) GetDataset(id string) (*models.Dataset, error) {
	query := `SELECT id, filename, byte_size, row_count, uploaded_at, profiled_at FROM datasets WHERE id = ?`

	var ds models.Dataset
	var uploadedAt int64
	var profiledAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(
		&ds.ID,
		&ds.Filename,
		&ds.ByteSize,
		&ds.RowCount,
		&uploadedAt,
		&profiledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	ds.UploadedAt = time.Unix(uploadedAt, 0)
	if profiledAt.Valid {
		t := time.Unix(profiledAt.Int64, 0)
		ds.ProfiledAt = &t
	}

	return &ds, nil
}

func (c *Client) MarkProfiled(datasetID string, rowCount int64) error {
	query := `UPDATE datasets SET row_count = ?, profiled_at = ? WHERE id = ?`

	_, err := c.db.Exec(query, rowCount, time.Now().Unix(), datasetID)
	if err != nil {
		return fmt.Errorf("failed to mark dataset profiled: %w", err)
	}
	return nil
}

func (c *Client) InsertProfileRun(run *models.ProfileRun) error {
	query := `
		INSERT INTO profile_runs (dataset_id, rows, columns, warnings, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		run.DatasetID,
		run.Rows,
		run.Columns,
		run.Warnings,
		run.DurationMS,
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile run: %w", err)
	}

	logger.Info("Profile run recorded",
		zap.String("dataset", run.DatasetID),
		zap.Int64("rows", run.Rows),
		zap.Int("duration_ms", run.DurationMS),
	)
	return nil
}

func (c *Client) InsertAskRecord(record *models.AskRecord) error {
	query := `
		INSERT INTO ask_history (id, dataset_id, question, intent_kind, answer, plot_key, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.DatasetID,
		record.Question,
		record.IntentKind,
		record.Answer,
		record.PlotKey,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ask record: %w", err)
	}
	return nil
}

func (c *Client) GetAskHistory(datasetID string, limit int) ([]models.AskRecord, error) {
	query := `
		SELECT id, dataset_id, question, intent_kind, answer, plot_key, latency_ms, created_at
		FROM ask_history
		WHERE dataset_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ask history: %w", err)
	}
	defer rows.Close()

	var records []models.AskRecord
	for rows.Next() {
		var r models.AskRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.DatasetID, &r.Question, &r.IntentKind, &r.Answer, &r.PlotKey, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}
