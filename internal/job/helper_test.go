package job

import (
	"fmt"
	"testing"
	"time"

	"mysticoracle/internal/infrastructure/database"
	"mysticoracle/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库
// cache=shared 必不可少：gorm 连接池里每个连接各自打开内存库，
// 事务走新连接时会看到一张表都没有
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedTxn(t *testing.T, db *gorm.DB, checkoutNo, providerRef string, expiredAt time.Time) *model.PaymentTransaction {
	t.Helper()

	txn := &model.PaymentTransaction{
		CheckoutNo:  checkoutNo,
		UserID:      900,
		Provider:    model.ProviderCard,
		ProviderRef: providerRef,
		PackageID:   1,
		Credits:     10,
		PriceCents:  799,
		Currency:    "USD",
		Status:      model.CheckoutStatusPending,
		ExpiredAt:   expiredAt,
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func txnStatus(t *testing.T, db *gorm.DB, checkoutNo string) (string, string) {
	t.Helper()

	var txn model.PaymentTransaction
	require.NoError(t, db.Where("checkout_no = ?", checkoutNo).First(&txn).Error)
	return txn.Status, txn.FailReason
}
