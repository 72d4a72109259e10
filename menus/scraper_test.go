package menus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const menuPage = `<html><body>
<div class="menu-item" data-hall="Findlay Commons">
  <span class="menu-item-name">Penne Marinara</span>
  <div class="nutrition">Calories: 320 Protein: 11 Carbohydrates: 58 Total Fat: 4.5</div>
</div>
<div class="menu-item" data-hall="Redifer Commons">
  <span class="menu-item-name"> Grilled Chicken </span>
  <div class="nutrition">calories 180 protein 34 carbs 0 fat 3</div>
</div>
<div class="menu-item" data-hall="Broken">
  <div class="nutrition">Calories: 1</div>
</div>
</body></html>`

func TestParseMenu(t *testing.T) {
	items := ParseMenu(menuPage, "2026-08-29", "Lunch")
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (nameless block skipped)", len(items))
	}
	first := items[0]
	if first.DiningHall != "Findlay Commons" || first.Name != "Penne Marinara" {
		t.Errorf("first item: %+v", first)
	}
	if first.Calories != 320 || first.Protein != 11 || first.Carbs != 58 || first.Fat != 4.5 {
		t.Errorf("first nutrition: %+v", first)
	}
	second := items[1]
	if second.Name != "Grilled Chicken" {
		t.Errorf("name not trimmed: %q", second.Name)
	}
	if second.Protein != 34 {
		t.Errorf("second nutrition: %+v", second)
	}
	if first.Date != "2026-08-29" || first.MealPeriod != "Lunch" {
		t.Errorf("day/meal not stamped: %+v", first)
	}
}

func TestScrapeDayUpserts(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var meals []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		meals = append(meals, r.PostFormValue("selMeal"))
		_, _ = w.Write([]byte(menuPage))
	}))
	defer server.Close()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	scraper := &Scraper{Db: db, Logger: log, MenuURL: server.URL}

	if err := scraper.ScrapeDay(context.Background(), "2026-08-29"); err != nil {
		t.Fatalf("ScrapeDay: %v", err)
	}
	if len(meals) != 3 {
		t.Errorf("fetched %d meal periods, want 3", len(meals))
	}
	var count int64
	db.Model(&store.MenuItem{}).Count(&count)
	if count != 6 {
		t.Errorf("stored %d items, want 2 per meal period", count)
	}

	// running the same day again must update in place, not duplicate
	if err := scraper.ScrapeDay(context.Background(), "2026-08-29"); err != nil {
		t.Fatalf("second ScrapeDay: %v", err)
	}
	db.Model(&store.MenuItem{}).Count(&count)
	if count != 6 {
		t.Errorf("rescrape duplicated rows: %d", count)
	}

	// EnsureToday is a no-op for a day that is already cached
	if err := scraper.EnsureToday(context.Background()); err != nil {
		t.Fatalf("EnsureToday: %v", err)
	}
}
