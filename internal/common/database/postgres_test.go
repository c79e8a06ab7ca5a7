// internal/common/database/postgres_test.go
package database

import (
	"context"
	"testing"

	stderr "apply-engine/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingWrapsConnectionFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(assert.AnError)

	client := &PostgresClient{DB: db}
	err = client.Ping(context.Background())

	require.Error(t, err)
	assert.Equal(t, stderr.ErrCodeDatabaseConnectionFailed, stderr.Code(err))
	assert.True(t, stderr.IsRetryable(err), "connection failures are retried by the boot loop")
}

func TestPingHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	client := &PostgresClient{DB: db}
	assert.NoError(t, client.Ping(context.Background()))
}

func TestCloseWithoutPool(t *testing.T) {
	client := &PostgresClient{}
	assert.NoError(t, client.Close())
}
