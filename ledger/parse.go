// Package ledger turns an authenticated portal session into deduplicated,
// persisted transaction records. The portal's markup is third-party and
// unstable, so every parsing step degrades to "keep the raw text" instead of
// failing the batch.
package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// RawRow is the as-scraped shape of one ledger line. Ephemeral: it is only
// ever a parsing intermediate, never persisted directly.
type RawRow struct {
	DateText        string `json:"date"`
	AccountLabel    string `json:"account"`
	CardSuffix      string `json:"card_suffix"`
	Location        string `json:"location"`
	TransactionType string `json:"transaction_type"`
	AmountText      string `json:"amount"`
	BalanceText     string `json:"balance,omitempty"`
}

// ledger table column layout, left to right
const minColumns = 6

// parseLedgerTable splits the rendered grid into raw rows. Rows with fewer
// columns than expected (spacers, headers rendered as body rows) are skipped
// rather than failing the whole batch.
func parseLedgerTable(html string) ([]RawRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []RawRow
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < minColumns {
			return
		}
		cell := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		row := RawRow{
			DateText:        cell(0),
			AccountLabel:    cell(1),
			CardSuffix:      lastFourDigits(cell(2)),
			Location:        cell(3),
			TransactionType: cell(4),
			AmountText:      cell(5),
		}
		if cells.Length() > minColumns {
			row.BalanceText = cell(6)
		}
		rows = append(rows, row)
	})
	return rows, nil
}

var reNonAmount = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount normalizes an amount token to a signed two-decimal value:
// currency symbols and thousands separators are stripped and parenthesized
// values are treated as negative.
func ParseAmount(text string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		negative = true
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	if strings.HasPrefix(trimmed, "-") {
		negative = true
	}
	cleaned := reNonAmount.ReplaceAllString(trimmed, "")
	cleaned = strings.TrimPrefix(cleaned, "-")
	if cleaned == "" || cleaned == "." {
		return decimal.Zero, errEmptyAmount
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	amount = amount.Round(2)
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

var errEmptyAmount = errParse("no numeric content in amount")

type errParse string

func (e errParse) Error() string { return string(e) }

var dateLayouts = []string{
	"01/02/2006 3:04PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"Jan 2, 2006",
}

// ParseDate tries the known portal layouts. On failure it returns the
// fallback with ok=false; callers persist the row anyway, flagged for
// manual inspection, since records must not silently vanish.
func ParseDate(text string, fallback time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return fallback, false
}

var reDigits = regexp.MustCompile(`\d+`)

// lastFourDigits keeps at most the trailing four digits of a card token.
// Full card numbers are never retained.
func lastFourDigits(text string) string {
	digits := strings.Join(reDigits.FindAllString(text, -1), "")
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return digits
}
