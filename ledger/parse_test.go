package ledger

import (
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"dollar", "$12.34", "12.34", false},
		{"parenthesized is negative", "($5.00)", "-5", false},
		{"euro without decimals", "€3", "3", false},
		{"plain negative", "-7.50", "-7.5", false},
		{"thousands separator", "$1,234.56", "1234.56", false},
		{"extra precision rounds", "$2.999", "3", false},
		{"whitespace", "  $0.25 ", "0.25", false},
		{"no digits", "pending", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected an error, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got, ok := ParseDate("08/15/2026", fallback)
	if !ok {
		t.Fatal("expected 08/15/2026 to parse")
	}
	if got.Year() != 2026 || got.Month() != time.August || got.Day() != 15 {
		t.Errorf("parsed %v", got)
	}

	got, ok = ParseDate("2026-08-15", fallback)
	if !ok || got.Day() != 15 {
		t.Errorf("iso layout: ok=%v got=%v", ok, got)
	}

	got, ok = ParseDate("not a date", fallback)
	if ok {
		t.Fatal("garbage should not parse")
	}
	if !got.Equal(fallback) {
		t.Errorf("fallback not applied: %v", got)
	}
}

func TestParseLedgerTable(t *testing.T) {
	html := `<table id="transactionHistory">
	<tr><th>Date</th><th>Account</th><th>Card</th><th>Location</th><th>Type</th><th>Amount</th></tr>
	<tr><td>08/15/2026 12:01PM</td><td>LionCash</td><td>xxxx-1234</td><td>Findlay Commons</td><td>Purchase</td><td>($5.00)</td></tr>
	<tr><td>08/14/2026</td><td>LionCash</td><td>9876543212345678</td><td>HUB Dining</td><td>Deposit</td><td>$40.00</td><td>$52.10</td></tr>
	<tr><td colspan="6">no more records</td></tr>
	</table>`

	rows, err := parseLedgerTable(html)
	if err != nil {
		t.Fatalf("parseLedgerTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (header and short rows skipped), got %d", len(rows))
	}
	first := rows[0]
	if first.Location != "Findlay Commons" || first.AmountText != "($5.00)" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.CardSuffix != "1234" {
		t.Errorf("card suffix = %q, want 1234", first.CardSuffix)
	}
	// full card numbers are never kept
	if rows[1].CardSuffix != "5678" {
		t.Errorf("card suffix = %q, want last four only", rows[1].CardSuffix)
	}
	if rows[1].BalanceText != "$52.10" {
		t.Errorf("balance = %q", rows[1].BalanceText)
	}
}

func TestLastFourDigits(t *testing.T) {
	if got := lastFourDigits("card ending 0042"); got != "0042" {
		t.Errorf("got %q", got)
	}
	if got := lastFourDigits("no digits"); got != "" {
		t.Errorf("got %q", got)
	}
}
