package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is an application account plus its linked-account status. The linked
// fields are mutated only by a successful sync or an unlink.
type User struct {
	gorm.Model
	Email    string `json:"email" gorm:"index:idx_user_email,unique"`
	Password string `json:"-"`

	PortalLinked          bool       `json:"portal_linked" gorm:"default:false"`
	PortalAccountLabel    string     `json:"portal_account_label"`
	LastSyncAt            *time.Time `json:"last_sync_at"`
	LatestTransactionDate *time.Time `json:"latest_transaction_date"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// GetUserByEmail retrieves an application user by email.
func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User
	if res := db.First(&user, "email = ?", email); errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return user, errors.New("user not found")
	} else if res.Error != nil {
		return user, res.Error
	}
	return user, nil
}

// GetUser retrieves an application user by id.
func GetUser(id uint, db *gorm.DB) (User, error) {
	var user User
	if res := db.First(&user, id); res.Error != nil {
		return user, res.Error
	}
	return user, nil
}

// Transaction is one canonical, persisted campus-card transaction. Records
// are never mutated after creation; they are only bulk-deleted on unlink or
// by the age-based cleanup.
//
// The scraped portal provides no stable transaction id, so the composite
// unique index on (user_id, transaction_date, location, amount) is the dedup
// key. The database constraint is the authoritative guard; any application-
// level existence check is an optimization on top of it.
type Transaction struct {
	gorm.Model
	UserID          uint            `json:"user_id" gorm:"uniqueIndex:idx_txn_dedup"`
	TransactionDate time.Time       `json:"transaction_date" gorm:"uniqueIndex:idx_txn_dedup"`
	Location        string          `json:"location" gorm:"uniqueIndex:idx_txn_dedup"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric;uniqueIndex:idx_txn_dedup"`
	Description     string          `json:"description"`
	BalanceAfter    decimal.NullDecimal `json:"balance_after" gorm:"type:numeric"`
	AccountType     string          `json:"account_type"`
	// CardSuffix holds the last four digits only; full numbers are never retained.
	CardSuffix string `json:"card_suffix"`
	// SourcePayload keeps the raw scraped row for audit and debugging.
	SourcePayload string `json:"source_payload"`
	// DateUnparsed flags rows whose date text failed to parse and carry a
	// best-effort placeholder instead; flagged for manual inspection rather
	// than dropped, because financial records should not silently vanish.
	DateUnparsed bool `json:"date_unparsed" gorm:"default:false"`
}

// MenuItem is one dish served on a given day, scraped by the daily menu job.
// The core linking flow neither reads nor writes these rows; the scraper
// only shares the database.
type MenuItem struct {
	gorm.Model
	Date       string  `json:"date" gorm:"uniqueIndex:idx_menu_item"`
	MealPeriod string  `json:"meal_period" gorm:"uniqueIndex:idx_menu_item"`
	DiningHall string  `json:"dining_hall" gorm:"uniqueIndex:idx_menu_item"`
	Name       string  `json:"name" gorm:"uniqueIndex:idx_menu_item"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
}
