package models

import "time"

type Dataset struct {
	ID         string
	Filename   string
	ByteSize   int64
	RowCount   int64
	UploadedAt time.Time
	ProfiledAt *time.Time
}

type ProfileRun struct {
	ID         int
	DatasetID  string
	Rows       int64
	Columns    int
	Warnings   int
	DurationMS int
	CreatedAt  time.Time
}

type AskRecord struct {
	ID         string
	DatasetID  string
	Question   string
	IntentKind string
	Answer     string
	PlotKey    string
	LatencyMS  int
	CreatedAt  time.Time
}
