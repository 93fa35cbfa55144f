package database

import (
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/pkg/logger"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dbCfg := &cfg.Database

	level := gormlogger.Warn
	if cfg.Server.Mode == "debug" {
		level = gormlogger.Info
	}
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
		// 唯一键冲突翻译为 gorm.ErrDuplicatedKey，用于幂等判断
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch dbCfg.Driver {
	case DriverSQLite:
		db, err = openSQLite(dbCfg.DSN, gormCfg)
	case DriverMySQL, "":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
			dbCfg.User,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Charset,
			dbCfg.ParseTime,
		)
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbCfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Database connection established", zap.String("driver", db.Dialector.Name()))

	// release 模式下只有显式 -migrate 才迁移
	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		logger.Log.Info("Database migration completed")
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.StudentProfile{},
		&model.WeakTopic{},
		&model.Test{},
		&model.TestQuestion{},
		&model.TestAttempt{},
	)
}

// OpenSQLite 打开并迁移一个 SQLite 库，测试使用。
// 单连接避免 :memory: 库在多个连接间不共享。
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := openSQLite(dsn, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func openSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn+sqlitePragmas(dsn)), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func sqlitePragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
