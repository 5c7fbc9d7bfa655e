// Package shelldb opens the PS Vita shell's application-inventory
// database (ur0:shell/db/app.db) and applies the single update the
// installer needs: recording a patch's version string against its
// title id.
package shelldb

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AppInfo mirrors one row of tbl_appinfo: a (titleId, key) pair and
// its string value.
type AppInfo struct {
	TitleID string `gorm:"column:titleId"`
	Key     int64  `gorm:"column:key"`
	Val     string `gorm:"column:val"`
}

// TableName pins the model to the shell's existing table rather than
// gorm's default pluralization.
func (AppInfo) TableName() string {
	return "tbl_appinfo"
}

// patchVersionKey is the tbl_appinfo key the shell reads a patch's
// displayed version string from.
const patchVersionKey = 3168212510

// DB is a handle to the open app.db connection.
type DB struct {
	gorm *gorm.DB
}

// Open connects to the sqlite database at path. The shell's schema
// already exists on-device; this module never migrates it.
func Open(path string, debug bool) (*DB, error) {
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}

	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("shelldb: opening %s: %w", path, err)
	}
	return &DB{gorm: g}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return fmt.Errorf("shelldb: getting underlying connection: %w", err)
	}
	return sqlDB.Close()
}

// UpdatePatchVersion sets tbl_appinfo.val to version for the row
// keyed by (titleId, patchVersionKey).
func (db *DB) UpdatePatchVersion(titleID, version string) error {
	res := db.gorm.Model(&AppInfo{}).
		Where("titleId = ? AND key = ?", titleID, patchVersionKey).
		Update("val", version)
	if res.Error != nil {
		return fmt.Errorf("shelldb: updating patch version for %s: %w", titleID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("shelldb: no tbl_appinfo row for titleId=%s key=%d", titleID, patchVersionKey)
	}
	return nil
}
