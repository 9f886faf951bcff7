package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/outbound-dispatch/pkg/config"
)

type leaseRow struct {
	ID      int
	LeaseID string
}

func newSQLiteClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver:       DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 20,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&leaseRow{}))
	return client
}

func TestNewSQLiteUsesSingleConnection(t *testing.T) {
	client := newSQLiteClient(t)

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewRejectsMissingDSNAndUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "root@/outbound"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&leaseRow{LeaseID: "lease-a"}).Error
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&leaseRow{LeaseID: "lease-b"}).Error; err != nil {
			return err
		}
		return errors.New("lease lost")
	})
	assert.EqualError(t, err, "lease lost")

	var leases []string
	require.NoError(t, client.DB().Model(&leaseRow{}).Pluck("lease_id", &leases).Error)
	assert.Equal(t, []string{"lease-a"}, leases)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newSQLiteClient(t)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&leaseRow{LeaseID: "lease-c"}).Error)
			panic("channel adapter exploded")
		})
	})

	var count int64
	require.NoError(t, client.DB().Model(&leaseRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: fmt.Errorf("claim: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "plain", err: errors.New("record not found"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
