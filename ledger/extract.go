package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
	"github.com/lionlink/lionlink/portal"
	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
)

// Portal ledger page controls. The portal has no query API; the date range
// goes through its own form controls.
const (
	selStartDate  = `input#startDate`
	selEndDate    = `input#endDate`
	selApplyRange = `button#applyDateRange`
	selLedgerGrid = `table#transactionHistory`
)

const portalDateLayout = "01/02/2006"

// Engine extracts transactions from an authenticated browser session.
type Engine struct {
	Flow   *portal.Flow
	Logger *logrus.Logger
	// FirstTimeout bounds the first render wait; RetryTimeout bounds the
	// single retry the portal's flaky first load gets.
	FirstTimeout time.Duration
	RetryTimeout time.Duration
}

func (e *Engine) firstTimeout() time.Duration {
	if e.FirstTimeout <= 0 {
		return 15 * time.Second
	}
	return e.FirstTimeout
}

func (e *Engine) retryTimeout() time.Duration {
	if e.RetryTimeout <= 0 {
		return 30 * time.Second
	}
	return e.RetryTimeout
}

// Fetch pulls every ledger row inside [start, end] from the portal and
// returns the parsed, not-yet-persisted records. Unparseable dates get the
// window start as a best-effort placeholder and are flagged.
func (e *Engine) Fetch(ctx context.Context, s browser.Session, start, end time.Time) ([]store.Transaction, error) {
	probe, cancel := context.WithTimeout(ctx, 5*time.Second)
	loc, err := s.Location(probe)
	cancel()
	if err != nil || !e.Flow.Config.OnPortal(loc) {
		nav, cancel := context.WithTimeout(ctx, e.firstTimeout())
		err := s.Navigate(nav, e.Flow.Config.PortalURL)
		if err == nil {
			loc, err = s.Location(nav)
		}
		cancel()
		if err != nil || !e.Flow.Config.OnPortal(loc) {
			if err == nil {
				err = errors.New("portal redirected to sign-on")
			}
			return nil, apperr.Wrap(err, apperr.ErrNotAuthenticated, "")
		}
	}

	// the grid occasionally fails to render on first load; one full
	// navigate-and-filter retry with a longer timeout before giving up
	html, err := e.loadGrid(ctx, s, start, end, e.firstTimeout())
	if err != nil {
		e.Logger.WithField("error", err.Error()).Warn("ledger grid did not render, retrying once")
		html, err = e.loadGrid(ctx, s, start, end, e.retryTimeout())
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrExtractionFailed, "")
		}
	}

	rows, err := parseLedgerTable(html)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrExtractionFailed, "ledger table could not be parsed")
	}
	return e.convert(rows, start), nil
}

func (e *Engine) loadGrid(ctx context.Context, s browser.Session, start, end time.Time, timeout time.Duration) (string, error) {
	nav, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Navigate(nav, e.Flow.Config.LedgerURL); err != nil {
		return "", err
	}
	if err := s.WaitVisible(nav, selStartDate); err != nil {
		return "", err
	}
	if err := s.SendKeys(nav, selStartDate, start.Format(portalDateLayout)); err != nil {
		return "", err
	}
	if err := s.SendKeys(nav, selEndDate, end.Format(portalDateLayout)); err != nil {
		return "", err
	}
	if err := s.Click(nav, selApplyRange); err != nil {
		return "", err
	}
	if err := s.WaitVisible(nav, selLedgerGrid); err != nil {
		return "", err
	}
	return s.OuterHTML(nav, selLedgerGrid)
}

// convert maps raw rows onto canonical records. Rows that fail amount
// parsing are dropped with a warning (no meaningful record exists without an
// amount); rows that fail only date parsing are kept and flagged.
func (e *Engine) convert(rows []RawRow, windowStart time.Time) []store.Transaction {
	records := make([]store.Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := ParseAmount(row.AmountText)
		if err != nil {
			e.Logger.WithFields(logrus.Fields{
				"amount":   row.AmountText,
				"location": row.Location,
			}).Warn("skipping row with unparseable amount")
			continue
		}
		date, ok := ParseDate(row.DateText, windowStart)
		payload, _ := json.Marshal(row)
		rec := store.Transaction{
			TransactionDate: date,
			Location:        row.Location,
			Description:     row.TransactionType,
			Amount:          amount,
			AccountType:     row.AccountLabel,
			CardSuffix:      row.CardSuffix,
			SourcePayload:   string(payload),
			DateUnparsed:    !ok,
		}
		if bal, err := ParseAmount(row.BalanceText); err == nil && row.BalanceText != "" {
			rec.BalanceAfter = decimalNull(bal)
		}
		records = append(records, rec)
	}
	return records
}
