package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestPingAndClose(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:               newLogger(),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), gdb))

	mock.ExpectClose()
	assert.NoError(t, Close(gdb))
	assert.NoError(t, mock.ExpectationsWereMet())
}
