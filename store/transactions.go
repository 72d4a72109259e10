package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionExists checks the dedup key without inserting. Used as a cheap
// pre-check; the unique index remains the source of truth under concurrency.
func TransactionExists(db *gorm.DB, userID uint, date time.Time, location string, amount decimal.Decimal) (bool, error) {
	var count int64
	res := db.Model(&Transaction{}).
		Where("user_id = ? AND transaction_date = ? AND location = ? AND amount = ?",
			userID, date, location, amount).
		Count(&count)
	return count > 0, res.Error
}

// InsertTransactions writes records in one batch, ignoring dedup conflicts.
// It returns the number of rows actually inserted. On a batch-level failure
// it degrades to per-record inserts so a single malformed row cannot block
// the rest.
func InsertTransactions(db *gorm.DB, records []Transaction) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
	if res.Error == nil {
		return res.RowsAffected, nil
	}
	var inserted int64
	var lastErr error
	for i := range records {
		rec := records[i]
		rec.ID = 0
		one := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if one.Error != nil {
			lastErr = one.Error
			continue
		}
		inserted += one.RowsAffected
	}
	return inserted, lastErr
}

// LatestTransactionDate returns the newest stored transaction date for the
// user, or nil when none exist.
func LatestTransactionDate(db *gorm.DB, userID uint) (*time.Time, error) {
	var txn Transaction
	res := db.Where("user_id = ?", userID).Order("transaction_date desc").First(&txn)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, res.Error
	}
	t := txn.TransactionDate
	return &t, nil
}

// CountTransactions reports how many records the user has.
func CountTransactions(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	res := db.Model(&Transaction{}).Where("user_id = ?", userID).Count(&count)
	return count, res.Error
}

// MarkSynced records a successful sync: it always advances last_sync_at and
// updates the watermark when newer records arrived. Failed syncs must never
// reach this.
func MarkSynced(db *gorm.DB, userID uint, at time.Time, latest *time.Time, accountLabel string) error {
	updates := map[string]any{
		"portal_linked": true,
		"last_sync_at":  at,
	}
	if latest != nil {
		updates["latest_transaction_date"] = *latest
	}
	if accountLabel != "" {
		updates["portal_account_label"] = accountLabel
	}
	return db.Model(&User{}).Where("id = ?", userID).Updates(updates).Error
}

// UnlinkUser clears the linked-account status and bulk-deletes every scraped
// record owned by the user.
func UnlinkUser(db *gorm.DB, userID uint) error {
	if err := db.Unscoped().Where("user_id = ?", userID).Delete(&Transaction{}).Error; err != nil {
		return err
	}
	return db.Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
		"portal_linked":           false,
		"portal_account_label":    "",
		"last_sync_at":            nil,
		"latest_transaction_date": nil,
	}).Error
}

// DeleteTransactionsOlderThan removes records whose transaction date is
// before cutoff. Owned by the sync coordinator's cleanup-by-age operation.
func DeleteTransactionsOlderThan(db *gorm.DB, userID uint, cutoff time.Time) (int64, error) {
	res := db.Unscoped().Where("user_id = ? AND transaction_date < ?", userID, cutoff).Delete(&Transaction{})
	return res.RowsAffected, res.Error
}
