package ledger

import (
	"context"
	"time"

	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
	"github.com/lionlink/lionlink/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Coordinator decides sync windows, runs the extraction engine and owns the
// watermark. One Sync call is one batch.
type Coordinator struct {
	DB     *gorm.DB
	Engine *Engine
	Logger *logrus.Logger
	// LookbackMonths is the default window when nothing was synced before
	// and the window for a full sync.
	LookbackMonths int
}

func (c *Coordinator) lookback(now time.Time) time.Time {
	months := c.LookbackMonths
	if months <= 0 {
		months = 6
	}
	return now.AddDate(0, -months, 0)
}

// Options control one sync run. Explicit dates override the window
// computation entirely.
type Options struct {
	Full      bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Result is the client-facing outcome of one sync run.
type Result struct {
	Success           bool       `json:"success"`
	TotalTransactions int        `json:"totalTransactions"`
	NewTransactions   int        `json:"newTransactions"`
	DuplicatesSkipped int        `json:"duplicatesSkipped"`
	LastSyncDate      *time.Time `json:"lastSyncDate,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Window computes [start, end] for the run: full sync always looks back the
// default window; incremental starts at the stored watermark (falling back
// to last_sync_at, then the default lookback).
func (c *Coordinator) Window(user store.User, opts Options, now time.Time) (time.Time, time.Time) {
	end := now
	if opts.EndDate != nil {
		end = *opts.EndDate
	}
	if opts.StartDate != nil {
		return *opts.StartDate, end
	}
	if opts.Full {
		return c.lookback(now), end
	}
	if user.LatestTransactionDate != nil {
		return *user.LatestTransactionDate, end
	}
	if user.LastSyncAt != nil {
		return *user.LastSyncAt, end
	}
	return c.lookback(now), end
}

// Sync extracts the window and persists what is new. A successful run, even
// with zero new records, advances last_sync_at; a failed run never does.
func (c *Coordinator) Sync(ctx context.Context, user store.User, sess browser.Session, opts Options) (Result, error) {
	now := time.Now()
	start, end := c.Window(user, opts, now)

	records, err := c.Engine.Fetch(ctx, sess, start, end)
	if err != nil {
		c.Logger.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Error("transaction fetch failed")
		return Result{Success: false, Error: apperr.Code(err)}, err
	}

	result := Result{Success: true, TotalTransactions: len(records)}
	var fresh []store.Transaction
	var latest *time.Time
	for i := range records {
		records[i].UserID = user.ID
		exists, err := store.TransactionExists(c.DB, user.ID, records[i].TransactionDate, records[i].Location, records[i].Amount)
		if err != nil {
			return Result{Success: false, Error: apperr.Code(apperr.ErrDatabase)}, apperr.Wrap(err, apperr.ErrDatabase, "")
		}
		if exists {
			result.DuplicatesSkipped++
			continue
		}
		fresh = append(fresh, records[i])
		if !records[i].DateUnparsed && (latest == nil || records[i].TransactionDate.After(*latest)) {
			t := records[i].TransactionDate
			latest = &t
		}
	}

	inserted, err := store.InsertTransactions(c.DB, fresh)
	if err != nil && inserted == 0 {
		return Result{Success: false, Error: apperr.Code(apperr.ErrDatabase)}, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	// rows the pre-check missed but the unique index caught are duplicates,
	// not failures
	result.NewTransactions = int(inserted)
	result.DuplicatesSkipped += len(fresh) - int(inserted)

	label := accountLabel(records)
	if err := store.MarkSynced(c.DB, user.ID, now, latest, label); err != nil {
		return Result{Success: false, Error: apperr.Code(apperr.ErrDatabase)}, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	result.LastSyncDate = &now
	c.Logger.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"raw":        result.TotalTransactions,
		"new":        result.NewTransactions,
		"duplicates": result.DuplicatesSkipped,
		"window":     start.Format("2006-01-02") + ".." + end.Format("2006-01-02"),
	}).Info("sync completed")
	return result, nil
}

// Status is the client-facing linked-account summary.
type Status struct {
	PortalLinked          bool       `json:"pennStateLinked"`
	LastSyncDate          *time.Time `json:"lastSyncDate,omitempty"`
	HasTransactions       bool       `json:"hasTransactions"`
	LatestTransactionDate *time.Time `json:"latestTransactionDate,omitempty"`
}

// SyncStatus summarizes the user's linked state for the status endpoint.
func (c *Coordinator) SyncStatus(user store.User) (Status, error) {
	count, err := store.CountTransactions(c.DB, user.ID)
	if err != nil {
		return Status{}, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return Status{
		PortalLinked:          user.PortalLinked,
		LastSyncDate:          user.LastSyncAt,
		HasTransactions:       count > 0,
		LatestTransactionDate: user.LatestTransactionDate,
	}, nil
}

// CleanupOlderThan bulk-deletes aged records for the user.
func (c *Coordinator) CleanupOlderThan(userID uint, cutoff time.Time) (int64, error) {
	return store.DeleteTransactionsOlderThan(c.DB, userID, cutoff)
}

func accountLabel(records []store.Transaction) string {
	for _, r := range records {
		if r.AccountType != "" {
			return r.AccountType
		}
	}
	return ""
}

func decimalNull(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
