// Package menus is the daily dining-menu scraper. It is deliberately dumb:
// one scheduled HTTP form fetch per meal period and regex extraction of the
// nutrition fields, upserted into the shared database. The linking core
// consumes nothing from it.
package menus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lionlink/lionlink/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var mealPeriods = []string{"Breakfast", "Lunch", "Dinner"}

type Scraper struct {
	Db      *gorm.DB
	Logger  *logrus.Logger
	MenuURL string
	Client  *http.Client
}

func (s *Scraper) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// EnsureToday scrapes only when today's menu is missing; run once at startup
// so a restart mid-day does not wait for the next cron tick.
func (s *Scraper) EnsureToday(ctx context.Context) error {
	today := time.Now().Format("2006-01-02")
	var count int64
	if err := s.Db.Model(&store.MenuItem{}).Where("date = ?", today).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.ScrapeDay(ctx, today)
}

// ScrapeDay fetches and upserts every meal period for the given day.
func (s *Scraper) ScrapeDay(ctx context.Context, day string) error {
	var lastErr error
	for _, meal := range mealPeriods {
		items, err := s.fetchMeal(ctx, day, meal)
		if err != nil {
			s.Logger.WithFields(logrus.Fields{"day": day, "meal": meal, "error": err.Error()}).Warn("menu fetch failed")
			lastErr = err
			continue
		}
		if len(items) == 0 {
			continue
		}
		if err := s.Db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "meal_period"}, {Name: "dining_hall"}, {Name: "name"}},
			UpdateAll: true,
		}).Create(&items).Error; err != nil {
			lastErr = err
			continue
		}
		s.Logger.WithFields(logrus.Fields{"day": day, "meal": meal, "items": len(items)}).Info("menu upserted")
	}
	return lastErr
}

func (s *Scraper) fetchMeal(ctx context.Context, day, meal string) ([]store.MenuItem, error) {
	form := url.Values{"selMenuDate": {day}, "selMeal": {meal}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.MenuURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("menu endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return ParseMenu(string(body), day, meal), nil
}

// The menu page repeats one block per dish; the block carries the dining
// hall, the dish name and a nutrition line. Third-party markup: anything
// that does not match is silently skipped.
var (
	reMenuBlock = regexp.MustCompile(`(?s)<div class="menu-item".*?</div>\s*</div>`)
	reHall      = regexp.MustCompile(`data-hall="([^"]+)"`)
	reName      = regexp.MustCompile(`class="menu-item-name"[^>]*>([^<]+)<`)
	reCalories  = regexp.MustCompile(`(?i)calories[:\s]*([\d.]+)`)
	reProtein   = regexp.MustCompile(`(?i)protein[:\s]*([\d.]+)`)
	reCarbs     = regexp.MustCompile(`(?i)carb(?:ohydrate)?s?[:\s]*([\d.]+)`)
	reFat       = regexp.MustCompile(`(?i)(?:total )?fat[:\s]*([\d.]+)`)
)

// ParseMenu extracts menu items out of the rendered page.
func ParseMenu(html, day, meal string) []store.MenuItem {
	var items []store.MenuItem
	for _, block := range reMenuBlock.FindAllString(html, -1) {
		name := submatch(reName, block)
		if name == "" {
			continue
		}
		item := store.MenuItem{
			Date:       day,
			MealPeriod: meal,
			DiningHall: submatch(reHall, block),
			Name:       strings.TrimSpace(name),
			Calories:   number(reCalories, block),
			Protein:    number(reProtein, block),
			Carbs:      number(reCarbs, block),
			Fat:        number(reFat, block),
		}
		items = append(items, item)
	}
	return items
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func number(re *regexp.Regexp, s string) float64 {
	v, _ := strconv.ParseFloat(submatch(re, s), 64)
	return v
}
