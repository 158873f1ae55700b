package main

import (
	"testing"

	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/config"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideBook(t *testing.T) {
	tests := []struct {
		name    string
		mode    types.RunMode
		store   types.AssetStore
		memory  bool
		wantErr error
	}{
		{name: "memory in local mode", mode: types.ModeLocal, store: types.AssetStoreMemory, memory: true},
		{name: "memory refused in api mode", mode: types.ModeAPI, store: types.AssetStoreMemory, wantErr: ierr.ErrNotSupported},
		{name: "memory refused in sweeper mode", mode: types.ModeSweeper, store: types.AssetStoreMemory, wantErr: ierr.ErrNotSupported},
		{name: "postgres in api mode", mode: types.ModeAPI, store: types.AssetStorePostgres},
		{name: "unset store is postgres", mode: types.ModeAPI},
		{name: "unknown store", mode: types.ModeLocal, store: "s3", wantErr: ierr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetDefaultConfig()
			cfg.Deployment.Mode = tt.mode
			cfg.Asset.Store = tt.store

			var db postgres.IClient = postgres.NewDBFromSQL(nil, logger.NewNopLogger())
			book, err := provideBook(cfg, db, logger.NewNopLogger())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, ierr.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			_, isLedger := book.(*asset.Ledger)
			assert.Equal(t, tt.memory, isLedger)
		})
	}
}
