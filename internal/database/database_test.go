package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	// A second run is a no-op
	require.NoError(t, Migrate(db))

	for _, table := range []any{&models.DrivingLog{}, &models.SubmissionSchedule{}, &models.AdminAction{}, &models.Notification{}, &models.AuditLog{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
