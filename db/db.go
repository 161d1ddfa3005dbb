package db

import (
	"fmt"
	"strings"

	"anomaly-detection/anomaly"
	"anomaly-detection/utils"
)

// RecordStore persists analysis records for later inspection through the
// dashboard history view. Append also satisfies anomaly.Sink, so a store
// can be wired straight into the pipeline.
type RecordStore interface {
	Append(record anomaly.AnalysisRecord) error
	Recent(limit int) ([]anomaly.AnalysisRecord, error)
	Close() error
}

// NewRecordStore builds the store selected by the DB_TYPE environment
// variable ("sqlite" or "mongo"; sqlite is the default).
func NewRecordStore() (RecordStore, error) {
	dbType := strings.ToLower(utils.GetEnv("DB_TYPE", "sqlite"))

	switch dbType {
	case "sqlite":
		dsn := utils.GetEnv("SQLITE_DSN", "storage/anomaly.db")
		return NewSQLiteStore(dsn)
	case "mongo":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		dbName := utils.GetEnv("MONGO_DB", "anomaly_detection")
		return NewMongoStore(uri, dbName)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
}
