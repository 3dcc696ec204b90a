package ledger

import (
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectorFunc opens the underlying database connection for a repository.
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector returns a connector for a file-backed SQLite database.
// Tests use the shared in-memory DSN "file::memory:?cache=shared".
func NewSQLiteConnector(dsn string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}

		return db, err
	}
}

// NewPostgreSQLConnector returns a connector for a PostgreSQL database.
func NewPostgreSQLConnector(dsn string, log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		log.Info().Msg("connecting to database host")

		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to database")
			return nil, err
		}

		return db, nil
	}
}
