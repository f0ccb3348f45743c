package repository

import (
	"testing"

	"github.com/nimasrn/donation-ledger/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var metaTables = []string{"donor_meta", "campaign_meta", "transaction_meta", "subscription_meta"}

// NewTestDB opens an in-memory sqlite database with every ledger table. One
// connection only, since each :memory: connection is its own database.
func NewTestDB(t testing.TB) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&DonorEntity{}, &CampaignEntity{}, &TransactionEntity{}, &SubscriptionEntity{}))
	for _, table := range metaTables {
		require.NoError(t, db.Table(table).AutoMigrate(&MetaEntity{}))
	}
	return pg.New(db, db)
}
