package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"nighthub/internal/catalog"
	"nighthub/internal/clicks"
	"nighthub/internal/favorites"
	"nighthub/internal/search"
	"nighthub/internal/tracking"
	"nighthub/internal/users"
)

const seedPassword = "nighthub-seed"

// Options sizes a seed run.
type Options struct {
	Users          int
	Days           int
	SessionsPerDay int
	// Seed makes a run reproducible; zero picks a random one.
	Seed uint64
}

func (o Options) withDefaults() Options {
	if o.Users <= 0 {
		o.Users = 25
	}
	if o.Days <= 0 {
		o.Days = 30
	}
	if o.SessionsPerDay <= 0 {
		o.SessionsPerDay = 40
	}
	if o.Seed == 0 {
		o.Seed = rand.Uint64()
	}
	return o
}

// Seeder fills a database with a believable month of nightlife app activity.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	Options   Options

	rng *rand.Rand
	now time.Time
}

func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, opts Options) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		Options:   opts,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed>>1|1)),
		now:       time.Now().UTC(),
	}
}

var zones = []string{"madrid", "barcelona", "ibiza", "valencia"}

var clubSeeds = []catalog.Club{
	{ID: "club-fabrik", Name: "Fabrik", Zone: "madrid"},
	{ID: "club-mondo", Name: "Mondo Disko", Zone: "madrid"},
	{ID: "club-razz", Name: "Razzmatazz", Zone: "barcelona"},
	{ID: "club-input", Name: "Input", Zone: "barcelona"},
	{ID: "club-amnesia", Name: "Amnesia", Zone: "ibiza"},
	{ID: "club-spook", Name: "Spook", Zone: "valencia"},
}

var djSeeds = []catalog.DJ{
	{ID: "dj-amelie", Name: "Amelie Lens"},
	{ID: "dj-charlotte", Name: "Charlotte de Witte"},
	{ID: "dj-klock", Name: "Ben Klock"},
	{ID: "dj-peggy", Name: "Peggy Gou"},
	{ID: "dj-solomun", Name: "Solomun"},
	{ID: "dj-honey", Name: "Honey Dijon"},
	{ID: "dj-dixon", Name: "Dixon"},
	{ID: "dj-nina", Name: "Nina Kraviz"},
}

var genrePool = []string{"techno", "house", "minimal", "melodic", "disco", "hard techno"}

var referralHosts = []string{
	"https://ra.co/events/%d",
	"//xceed.me/en/event/%d",
	"www.fourvenues.com/e/%d",
	"https://www.eventbrite.es/e/%d",
	"",
}

var userAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

var langs = []string{"es-ES", "es-ES", "en-GB", "en-US", "fr-FR", "de-DE", "it-IT"}

var countries = []string{"ES", "ES", "ES", "GB", "FR", "DE", "IT", ""}

var firstReferrers = []string{
	"", "", "https://www.instagram.com/", "https://www.google.com/", "https://www.tiktok.com/",
	"https://ra.co/", "android-app://com.whatsapp", "https://linktr.ee/fabrik",
}

var searchTerms = []string{
	"amelie lens", "techno", "ben klock", "fabrik", "peggy gou", "this weekend",
	"charlotte de witte", "house", "solomun ibiza", "after party",
}

// Run seeds the catalog, users and tracked activity.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...",
		slog.Int("users", s.Options.Users),
		slog.Int("days", s.Options.Days),
		slog.Uint64("seed", s.Options.Seed))

	db := s.DBManager.GetConnection()

	events, err := s.seedCatalog(db)
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	seededUsers, err := s.seedUsers(db)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	sessions, err := s.seedActivity(ctx, db, events, seededUsers)
	if err != nil {
		return fmt.Errorf("failed to seed activity: %w", err)
	}

	if err := s.seedFavorites(ctx, db, events, seededUsers); err != nil {
		return fmt.Errorf("failed to seed favorites: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("events", len(events)),
		slog.Int("users", len(seededUsers)),
		slog.Int("sessions", sessions),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedCatalog(db *gorm.DB) ([]catalog.Event, error) {
	events := make([]catalog.Event, 0, 16)
	for i := 0; i < 16; i++ {
		club := clubSeeds[i%len(clubSeeds)]
		dj := djSeeds[s.rng.IntN(len(djSeeds))]

		referral := referralHosts[s.rng.IntN(len(referralHosts))]
		if referral != "" {
			referral = fmt.Sprintf(referral, 1000+i)
		}

		status := catalog.StatusPublished
		if i%7 == 6 {
			status = catalog.StatusDraft
		}

		event := catalog.Event{
			ID:          fmt.Sprintf("event-%02d", i+1),
			Name:        fmt.Sprintf("%s at %s", dj.Name, club.Name),
			ClubID:      club.ID,
			Zone:        club.Zone,
			Status:      status,
			StartAt:     s.now.Truncate(24*time.Hour).AddDate(0, 0, i-4).Add(23 * time.Hour),
			URLReferral: referral,
		}
		event.SetGenres([]string{genrePool[s.rng.IntN(len(genrePool))], genrePool[s.rng.IntN(len(genrePool))]})
		events = append(events, event)
	}

	err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
		for _, club := range clubSeeds {
			if err := tx.Save(&club).Error; err != nil {
				return err
			}
		}
		for _, dj := range djSeeds {
			if err := tx.Save(&dj).Error; err != nil {
				return err
			}
		}
		for i := range events {
			if err := tx.Save(&events[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Seeded catalog",
		slog.Int("clubs", len(clubSeeds)),
		slog.Int("djs", len(djSeeds)),
		slog.Int("events", len(events)))
	return events, nil
}

func (s *Seeder) seedUsers(db *gorm.DB) ([]users.User, error) {
	out := make([]users.User, 0, s.Options.Users)
	for i := 0; i < s.Options.Users; i++ {
		email := fmt.Sprintf("raver%03d@example.com", i+1)

		user, err := users.CreateUser(db, email, fmt.Sprintf("Raver %d", i+1), seedPassword)
		if errors.Is(err, users.ErrUserExists) {
			if user, err = users.FindByEmail(db, email); err != nil {
				return nil, err
			}
			out = append(out, *user)
			continue
		}
		if err != nil {
			return nil, err
		}

		// Spread registrations over the seeded period.
		createdAt := s.now.Add(-time.Duration(s.rng.IntN(s.Options.Days*24)) * time.Hour)
		err = sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.Model(&users.User{}).Where("id = ?", user.ID).UpdateColumn("created_at", createdAt).Error
		})
		if err != nil {
			return nil, err
		}
		user.CreatedAt = createdAt
		out = append(out, *user)
	}
	s.Logger.Info("Seeded users", slog.Int("count", len(out)))
	return out, nil
}

// journey is the screen sequence of one visit.
type journey []string

func (s *Seeder) journeyFor(events []catalog.Event) journey {
	event := events[s.rng.IntN(len(events))]
	club := clubSeeds[s.rng.IntN(len(clubSeeds))]
	dj := djSeeds[s.rng.IntN(len(djSeeds))]

	templates := []journey{
		{"/", "/event/" + event.ID},
		{"/", "/search", "/event/" + event.ID},
		{"/event/" + event.ID},
		{"/", "/club/" + club.ID, "/event/" + event.ID},
		{"/", "/dj/" + dj.ID},
		{"/", "/favorites"},
		{"/", "/profile"},
		{"/"},
	}
	return templates[s.rng.IntN(len(templates))]
}

// seedActivity writes devices, sessions and page views through the tracking
// repository, plus the clicks and searches those visits produce.
func (s *Seeder) seedActivity(ctx context.Context, db *gorm.DB, events []catalog.Event, seededUsers []users.User) (int, error) {
	repo := tracking.NewRepository(db, s.Logger)

	devicePool := make([]string, s.Options.SessionsPerDay)
	for i := range devicePool {
		devicePool[i] = uuid.NewString()
	}
	knownDevices := map[string]bool{}
	sessions := 0

	for day := s.Options.Days - 1; day >= 0; day-- {
		for n := 0; n < s.Options.SessionsPerDay; n++ {
			if err := ctx.Err(); err != nil {
				return sessions, err
			}

			deviceID := devicePool[s.rng.IntN(len(devicePool))]
			userID := ""
			if s.rng.Float64() < 0.55 && len(seededUsers) > 0 {
				userID = seededUsers[s.rng.IntN(len(seededUsers))].ID
			}

			// Nightlife traffic peaks in the evening.
			startedAt := s.now.Truncate(24*time.Hour).AddDate(0, 0, -day).
				Add(time.Duration(17+s.rng.IntN(10)) * time.Hour).
				Add(time.Duration(s.rng.IntN(3600)) * time.Second)
			if startedAt.After(s.now) {
				continue
			}

			if err := s.visit(ctx, db, repo, events, deviceID, userID, startedAt, !knownDevices[deviceID]); err != nil {
				return sessions, err
			}
			knownDevices[deviceID] = true
			sessions++
		}
	}
	return sessions, nil
}

func (s *Seeder) visit(ctx context.Context, db *gorm.DB, repo *tracking.Repository, events []catalog.Event,
	deviceID, userID string, startedAt time.Time, isNew bool) error {

	meta := tracking.DetectDevice(userAgents[s.rng.IntN(len(userAgents))], langs[s.rng.IntN(len(langs))], "Europe/Madrid", s.rng.Float64() < 0.3)

	err := repo.UpsertDevice(ctx, tracking.DeviceUpsert{
		DeviceMeta: meta,
		DeviceID:   deviceID,
		UserID:     userID,
		SeenAt:     startedAt,
		IsNew:      isNew,
		Referrer:   firstReferrers[s.rng.IntN(len(firstReferrers))],
	})
	if err != nil {
		return err
	}

	path := s.journeyFor(events)
	sessionID := uuid.NewString()
	err = repo.StartSession(ctx, tracking.SessionStart{
		DeviceMeta:  meta,
		ID:          sessionID,
		DeviceID:    deviceID,
		UserID:      userID,
		StartedAt:   startedAt,
		Path:        path[0],
		IsNewDevice: isNew,
		Country:     countries[s.rng.IntN(len(countries))],
	})
	if err != nil {
		return err
	}

	at := startedAt
	for i, screen := range path {
		eventID := strings.TrimPrefix(screen, "/event/")
		if eventID == screen {
			eventID = ""
		}

		viewID := uuid.NewString()
		referrer := ""
		if i > 0 {
			referrer = path[i-1]
		}
		if err := repo.StartView(ctx, tracking.ViewStart{
			ID: viewID, SessionID: sessionID, DeviceID: deviceID, UserID: userID,
			Path: screen, Screen: screen, Referrer: referrer, EventID: eventID, StartedAt: at,
		}); err != nil {
			return err
		}

		// A third of the views bounce under the default threshold.
		dwell := time.Duration(2+s.rng.IntN(8)) * time.Second
		if s.rng.Float64() > 0.33 {
			dwell = time.Duration(15+s.rng.IntN(180)) * time.Second
		}
		at = at.Add(dwell)

		if err := repo.EndView(ctx, tracking.ViewEnd{ID: viewID, EndedAt: at, DurationMs: dwell.Milliseconds()}); err != nil {
			return err
		}

		if screen == "/search" {
			if err := s.search(ctx, db, userID, at); err != nil {
				return err
			}
		}
		if eventID != "" && s.rng.Float64() < 0.2 {
			if err := s.click(ctx, db, events, eventID, userID, deviceID, sessionID, screen, at); err != nil {
				return err
			}
		}
	}

	return repo.TouchSession(ctx, tracking.SessionTouch{
		ID: sessionID, SeenAt: at, DurationMs: at.Sub(startedAt).Milliseconds(),
		Path: path[len(path)-1], UserID: userID,
	})
}

func (s *Seeder) search(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	entry := search.Log{
		Q:      searchTerms[s.rng.IntN(len(searchTerms))],
		Zone:   zones[s.rng.IntN(len(zones))],
		Tab:    []string{"events", "clubs", "djs"}[s.rng.IntN(3)],
		UserID: userID,
	}
	if err := search.Record(ctx, db, s.Logger, entry); err != nil {
		return err
	}
	// Record stamps the current time; move the row back to the visit.
	return sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
		return tx.Model(&search.Log{}).
			Where("id = (SELECT MAX(id) FROM search_logs)").
			UpdateColumn("ts", at).Error
	})
}

func (s *Seeder) click(ctx context.Context, db *gorm.DB, events []catalog.Event, eventID, userID, deviceID, sessionID, path string, at time.Time) error {
	for _, e := range events {
		if e.ID != eventID || e.URLReferral == "" {
			continue
		}
		return clicks.Record(ctx, db, s.Logger, clicks.Click{
			EventID:     eventID,
			UserID:      userID,
			Source:      []string{clicks.DefaultSource, "event", "push"}[s.rng.IntN(3)],
			ReferralURL: clicks.NormalizeURL(e.URLReferral),
			DeviceID:    deviceID,
			SessionID:   sessionID,
			Path:        path,
			TS:          at,
		})
	}
	return nil
}

func (s *Seeder) seedFavorites(ctx context.Context, db *gorm.DB, events []catalog.Event, seededUsers []users.User) error {
	added := 0
	for _, user := range seededUsers {
		for i := s.rng.IntN(5); i > 0; i-- {
			var targetType, targetID string
			switch s.rng.IntN(3) {
			case 0:
				targetType, targetID = "event", events[s.rng.IntN(len(events))].ID
			case 1:
				targetType, targetID = "club", clubSeeds[s.rng.IntN(len(clubSeeds))].ID
			default:
				targetType, targetID = "dj", djSeeds[s.rng.IntN(len(djSeeds))].ID
			}
			if err := favorites.Add(ctx, db, s.Logger, user.ID, targetType, targetID); err != nil {
				return err
			}
			added++
		}
	}
	s.Logger.Info("Seeded favorites", slog.Int("count", added))
	return nil
}
