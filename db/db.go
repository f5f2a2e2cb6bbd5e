package db

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Instance *gorm.DB

// Open connects to MySQL if dsn is set, otherwise to the SQLite file
func Open(mysqlDSN, sqliteFile string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if mysqlDSN != "" {
		dialector = mysql.Open(mysqlDSN)
	} else if sqliteFile != "" {
		// Foreign keys are off by default in SQLite, album deletes rely on them
		sep := "?"
		if strings.Contains(sqliteFile, "?") {
			sep = "&"
		}
		dialector = sqlite.Open(sqliteFile + sep + "_foreign_keys=on")
	} else {
		return nil, errors.New("no database configured: set MYSQL_DSN or SQLITE_FILE")
	}
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}
	if mysqlDSN == "" {
		// SQLite has a single writer, concurrent placements would fail with "table is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Init(mysqlDSN, sqliteFile string, debug bool) {
	db, err := Open(mysqlDSN, sqliteFile, debug)
	if err != nil || db == nil {
		log.Fatal().Err(err).Msg("Cannot open database")
	}
	Instance = db
}
