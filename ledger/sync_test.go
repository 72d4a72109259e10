package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
	"github.com/lionlink/lionlink/portal"
	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	flow := &portal.Flow{
		Config: portal.Config{
			ProviderURL:   "https://login.example.edu/sso",
			PortalURL:     "https://idcard.example.edu/cash",
			PortalPattern: "idcard.example.edu",
			LedgerURL:     "https://idcard.example.edu/cash/transactions",
		},
		Logger: log,
	}
	return &Coordinator{
		DB:             testDB(t),
		Engine:         &Engine{Flow: flow, Logger: log, FirstTimeout: time.Second, RetryTimeout: time.Second},
		Logger:         log,
		LookbackMonths: 6,
	}
}

const testGrid = `<table id="transactionHistory">
<tr><th>Date</th><th>Account</th><th>Card</th><th>Location</th><th>Type</th><th>Amount</th></tr>
<tr><td>08/15/2026 12:01PM</td><td>LionCash</td><td>xxxx-1234</td><td>Findlay Commons</td><td>Purchase</td><td>($5.00)</td></tr>
<tr><td>08/14/2026</td><td>LionCash</td><td>xxxx-1234</td><td>HUB Dining</td><td>Deposit</td><td>$40.00</td><td>$52.10</td></tr>
</table>`

// ledgerFake is a browser already signed in to the portal, with the history
// page's filter controls and, when grid is non-empty, a rendered grid.
func ledgerFake(grid string) *browser.FakeSession {
	fake := browser.NewFakeSession("https://idcard.example.edu/cash")
	fake.Set(selStartDate, "")
	fake.Set(selEndDate, "")
	fake.Set(selApplyRange, "Apply")
	if grid != "" {
		fake.HTML[selLedgerGrid] = grid
	}
	return fake
}

func mustUser(t *testing.T, db *gorm.DB, email string) store.User {
	t.Helper()
	user := store.User{Email: email, Password: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestSyncInsertsThenDedups(t *testing.T) {
	c := testCoordinator(t)
	user := mustUser(t, c.DB, "sync@example.edu")

	res, err := c.Sync(context.Background(), user, ledgerFake(testGrid), Options{})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if !res.Success || res.TotalTransactions != 2 || res.NewTransactions != 2 || res.DuplicatesSkipped != 0 {
		t.Fatalf("first sync result: %+v", res)
	}

	// the watermark and linked status must reflect the successful run
	user, err = store.GetUser(user.ID, c.DB)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !user.PortalLinked || user.LastSyncAt == nil {
		t.Fatalf("user not marked synced: %+v", user)
	}
	if user.LatestTransactionDate == nil || user.LatestTransactionDate.Day() != 15 {
		t.Errorf("watermark = %v, want the newest parsed date", user.LatestTransactionDate)
	}
	if user.PortalAccountLabel != "LionCash" {
		t.Errorf("account label = %q", user.PortalAccountLabel)
	}

	// the same window again: everything is a duplicate, nothing is written
	res, err = c.Sync(context.Background(), user, ledgerFake(testGrid), Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.NewTransactions != 0 || res.DuplicatesSkipped != 2 {
		t.Fatalf("second sync result: %+v", res)
	}
	count, err := store.CountTransactions(c.DB, user.ID)
	if err != nil || count != 2 {
		t.Errorf("stored rows = %d (err %v), want 2", count, err)
	}
}

func TestSyncFailureLeavesWatermark(t *testing.T) {
	c := testCoordinator(t)
	user := mustUser(t, c.DB, "fail@example.edu")

	// filter controls present but the grid never renders, even on retry
	res, err := c.Sync(context.Background(), user, ledgerFake(""), Options{})
	if !apperr.Is(err, apperr.ErrExtractionFailed) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
	if res.Success {
		t.Error("failed sync reported success")
	}

	user, err = store.GetUser(user.ID, c.DB)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.LastSyncAt != nil || user.PortalLinked {
		t.Errorf("failed sync must not advance the watermark: %+v", user)
	}
}

func TestSyncNotAuthenticated(t *testing.T) {
	c := testCoordinator(t)
	user := mustUser(t, c.DB, "expired@example.edu")

	// the portal bounced the stale session back to the login page
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.OnNavigate = func(f *browser.FakeSession, url string) {
		f.SetURL("https://login.example.edu/sso?redirect=" + url)
	}

	_, err := c.Sync(context.Background(), user, fake, Options{})
	if !apperr.Is(err, apperr.ErrNotAuthenticated) {
		t.Fatalf("expected not_authenticated, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	c := testCoordinator(t)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	watermark := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	lastSync := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	start, end := c.Window(store.User{}, Options{}, now)
	if !start.Equal(now.AddDate(0, -6, 0)) || !end.Equal(now) {
		t.Errorf("never-synced window = %v..%v", start, end)
	}

	start, _ = c.Window(store.User{LatestTransactionDate: &watermark, LastSyncAt: &lastSync}, Options{}, now)
	if !start.Equal(watermark) {
		t.Errorf("incremental start = %v, want the transaction watermark", start)
	}

	start, _ = c.Window(store.User{LastSyncAt: &lastSync}, Options{}, now)
	if !start.Equal(lastSync) {
		t.Errorf("fallback start = %v, want last_sync_at", start)
	}

	start, _ = c.Window(store.User{LatestTransactionDate: &watermark}, Options{Full: true}, now)
	if !start.Equal(now.AddDate(0, -6, 0)) {
		t.Errorf("full sync start = %v, want the default lookback", start)
	}

	explicit := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	explicitEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	start, end = c.Window(store.User{LatestTransactionDate: &watermark}, Options{StartDate: &explicit, EndDate: &explicitEnd}, now)
	if !start.Equal(explicit) || !end.Equal(explicitEnd) {
		t.Errorf("explicit window = %v..%v", start, end)
	}
}

func TestSyncStatus(t *testing.T) {
	c := testCoordinator(t)
	user := mustUser(t, c.DB, "status@example.edu")

	status, err := c.SyncStatus(user)
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if status.PortalLinked || status.HasTransactions {
		t.Errorf("fresh user status: %+v", status)
	}

	if _, err := c.Sync(context.Background(), user, ledgerFake(testGrid), Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	user, _ = store.GetUser(user.ID, c.DB)
	status, err = c.SyncStatus(user)
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if !status.PortalLinked || !status.HasTransactions || status.LastSyncDate == nil {
		t.Errorf("synced user status: %+v", status)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	c := testCoordinator(t)
	user := mustUser(t, c.DB, "cleanup@example.edu")
	if _, err := c.Sync(context.Background(), user, ledgerFake(testGrid), Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	cutoff := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	deleted, err := c.CleanupOlderThan(user.ID, cutoff)
	if err != nil {
		t.Fatalf("CleanupOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want the one record before the cutoff", deleted)
	}
	count, _ := store.CountTransactions(c.DB, user.ID)
	if count != 1 {
		t.Errorf("remaining rows = %d", count)
	}
}
