// Package db opens and migrates the Drydock registry database.
package db

import (
	"fmt"

	"github.com/zulandar/drydock/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from database configuration.
func DSN(dc config.DatabaseConfig) string {
	cred := dc.User
	if dc.Password != "" {
		cred += ":" + dc.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", cred, dc.Host, dc.Port, dc.Database)
}

// Connect opens a GORM connection to the configured backing store.
func Connect(dc config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	switch dc.Driver {
	case "mysql":
		gdb, err := gorm.Open(mysql.Open(DSN(dc)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", dc.Host, dc.Port, dc.Database, err)
		}
		return gdb, nil
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(dc.Path), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("db: open %s: %w", dc.Path, err)
		}
		return gdb, nil
	default:
		return nil, fmt.Errorf("db: unknown driver %q", dc.Driver)
	}
}
