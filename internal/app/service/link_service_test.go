package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
)

type mockLinkRepository struct {
	createFn      func(ctx context.Context, link *model.Link) error
	getByAliasFn  func(ctx context.Context, alias string) (*model.Link, error)
	existsFn      func(ctx context.Context, alias string) (bool, error)
	listByUserFn  func(ctx context.Context, userID uuid.UUID) ([]model.Link, error)
	listAliasesFn func(ctx context.Context) ([]string, error)
	claimFn       func(ctx context.Context, userID, sessionID uuid.UUID) (repository.ClaimResult, error)
	deleteExpFn   func(ctx context.Context, now time.Time) (repository.SweepResult, error)
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	if m.getByAliasFn != nil {
		return m.getByAliasFn(ctx, alias)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) ExistsByAlias(ctx context.Context, alias string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, alias)
	}
	return false, nil
}

func (m *mockLinkRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Link, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLinkRepository) ListAliases(ctx context.Context) ([]string, error) {
	if m.listAliasesFn != nil {
		return m.listAliasesFn(ctx)
	}
	return nil, nil
}

func (m *mockLinkRepository) ClaimAnonymous(ctx context.Context, userID, sessionID uuid.UUID) (repository.ClaimResult, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, userID, sessionID)
	}
	return repository.ClaimResult{}, nil
}

func (m *mockLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (repository.SweepResult, error) {
	if m.deleteExpFn != nil {
		return m.deleteExpFn(ctx, now)
	}
	return repository.SweepResult{}, nil
}

type mockClickRepository struct {
	createFn       func(ctx context.Context, click *model.Click) error
	countFn        func(ctx context.Context, linkID uuid.UUID) (int64, error)
	perDayFn       func(ctx context.Context, linkID uuid.UUID, since time.Time) ([]model.DayCount, error)
	topReferrersFn func(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
	topDevicesFn   func(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
	topCountriesFn func(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
}

func (m *mockClickRepository) Create(ctx context.Context, click *model.Click) error {
	if m.createFn != nil {
		return m.createFn(ctx, click)
	}
	return nil
}

func (m *mockClickRepository) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, linkID)
	}
	return 0, nil
}

func (m *mockClickRepository) ClicksPerDay(ctx context.Context, linkID uuid.UUID, since time.Time) ([]model.DayCount, error) {
	if m.perDayFn != nil {
		return m.perDayFn(ctx, linkID, since)
	}
	return nil, nil
}

func (m *mockClickRepository) TopReferrers(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	if m.topReferrersFn != nil {
		return m.topReferrersFn(ctx, linkID, limit)
	}
	return nil, nil
}

func (m *mockClickRepository) TopDevices(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	if m.topDevicesFn != nil {
		return m.topDevicesFn(ctx, linkID, limit)
	}
	return nil, nil
}

func (m *mockClickRepository) TopCountries(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	if m.topCountriesFn != nil {
		return m.topCountriesFn(ctx, linkID, limit)
	}
	return nil, nil
}

func newTestService(repo repository.LinkRepository, clicks repository.ClickRepository) LinkService {
	if clicks == nil {
		clicks = &mockClickRepository{}
	}
	return NewLinkService(repo, clicks, nil, LinkPolicy{
		ReservedAliases: []string{"api", "auth", "admin"},
		DefaultExpiry:   Period{Months: 1},
		MaxExpiry:       Period{Years: 5},
		AliasLength:     7,
	}, nil)
}

func TestLinkService_CreateLink_GeneratedAlias(t *testing.T) {
	var created *model.Link
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			created = link
			return nil
		},
	}

	svc := newTestService(repo, nil)
	before := time.Now().UTC()
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL: "https://example.com",
	})
	if err != nil {
		t.Fatalf("CreateLink returned error: %v", err)
	}
	if created == nil {
		t.Fatal("expected repository create to be called")
	}

	if !regexp.MustCompile(`^[A-Za-z0-9_-]{7}$`).MatchString(link.ShortAlias) {
		t.Fatalf("generated alias %q violates charset/length", link.ShortAlias)
	}

	// Default expiry is one month (30 days) from request time.
	want := before.Add(30 * 24 * time.Hour)
	if diff := link.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expiresAt %v not within a minute of %v", link.ExpiresAt, want)
	}
	if !link.ExpiresAt.After(link.CreatedAt) {
		t.Fatal("expiresAt must be strictly after createdAt")
	}
}

func TestLinkService_CreateLink_CustomAlias(t *testing.T) {
	repo := &mockLinkRepository{}
	svc := newTestService(repo, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL: "https://example.com",
		Alias:   "my-link",
	})
	if err != nil {
		t.Fatalf("CreateLink returned error: %v", err)
	}
	if link.ShortAlias != "my-link" {
		t.Fatalf("expected custom alias, got %q", link.ShortAlias)
	}
}

func TestLinkService_CreateLink_ReservedAlias(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, nil)

	for _, alias := range []string{"api", "API", "Admin"} {
		_, err := svc.CreateLink(context.Background(), CreateLinkInput{
			LongURL: "https://example.com",
			Alias:   alias,
		})
		if !errors.Is(err, ErrReservedAlias) {
			t.Fatalf("alias %q: expected ErrReservedAlias, got %v", alias, err)
		}
	}
}

func TestLinkService_CreateLink_InvalidAlias(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, nil)

	for _, alias := range []string{"ab", "has space", "bad*chars", strings.Repeat("a", 51)} {
		_, err := svc.CreateLink(context.Background(), CreateLinkInput{
			LongURL: "https://example.com",
			Alias:   alias,
		})
		if !errors.Is(err, ErrInvalidAlias) {
			t.Fatalf("alias %q: expected ErrInvalidAlias, got %v", alias, err)
		}
	}
}

func TestLinkService_CreateLink_AliasTaken(t *testing.T) {
	repo := &mockLinkRepository{
		existsFn: func(ctx context.Context, alias string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL: "https://example.com",
		Alias:   "taken",
	})
	if !errors.Is(err, repository.ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
}

func TestLinkService_CreateLink_LateConflictSurfaces(t *testing.T) {
	// The pre-insert existence check passes, but a concurrent creator wins
	// the unique index. The conflict must surface, not be swallowed.
	repo := &mockLinkRepository{
		existsFn: func(ctx context.Context, alias string) (bool, error) {
			return false, nil
		},
		createFn: func(ctx context.Context, link *model.Link) error {
			return repository.ErrAliasTaken
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL: "https://example.com",
		Alias:   "contested",
	})
	if !errors.Is(err, repository.ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
}

func TestLinkService_CreateLink_Expiry(t *testing.T) {
	repo := &mockLinkRepository{}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.CreateLink(ctx, CreateLinkInput{LongURL: "https://example.com", Expiry: "P5Y"}); err != nil {
		t.Fatalf("P5Y should be accepted, got %v", err)
	}

	_, err := svc.CreateLink(ctx, CreateLinkInput{LongURL: "https://example.com", Expiry: "P6Y"})
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("P6Y: expected ErrInvalidExpiry, got %v", err)
	}

	_, err = svc.CreateLink(ctx, CreateLinkInput{LongURL: "https://example.com", Expiry: "next tuesday"})
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("garbage expiry: expected ErrInvalidExpiry, got %v", err)
	}
}

func TestLinkService_CreateLink_NoPersistOnValidationError(t *testing.T) {
	createCalled := false
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			createCalled = true
			return nil
		},
	}
	svc := newTestService(repo, nil)

	_, _ = svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com", Expiry: "P9Y"})
	_, _ = svc.CreateLink(context.Background(), CreateLinkInput{LongURL: "https://example.com", Alias: "api"})
	if createCalled {
		t.Fatal("validation failures must not reach the repository")
	}
}

func TestLinkService_Resolve_ExpiredLooksLikeMissing(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	repo := &mockLinkRepository{
		getByAliasFn: func(ctx context.Context, alias string) (*model.Link, error) {
			if alias == "expired" {
				return &model.Link{ShortAlias: alias, LongURL: "https://old.example.com", ExpiresAt: past}, nil
			}
			return nil, repository.ErrLinkNotFound
		},
	}
	svc := newTestService(repo, nil)

	_, errExpired := svc.Resolve(context.Background(), "expired")
	_, errMissing := svc.Resolve(context.Background(), "never-existed")

	if !errors.Is(errExpired, repository.ErrLinkNotFound) {
		t.Fatalf("expired alias: expected ErrLinkNotFound, got %v", errExpired)
	}
	if !errors.Is(errMissing, repository.ErrLinkNotFound) {
		t.Fatalf("missing alias: expected ErrLinkNotFound, got %v", errMissing)
	}
}

func TestLinkService_Resolve_Live(t *testing.T) {
	future := time.Now().UTC().Add(time.Hour)
	repo := &mockLinkRepository{
		getByAliasFn: func(ctx context.Context, alias string) (*model.Link, error) {
			return &model.Link{ShortAlias: alias, LongURL: "https://example.com", ExpiresAt: future}, nil
		},
	}
	svc := newTestService(repo, nil)

	link, err := svc.Resolve(context.Background(), "abc1234")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if link.LongURL != "https://example.com" {
		t.Fatalf("unexpected destination %q", link.LongURL)
	}
}

func TestLinkService_ClaimLinks(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()

	var gotUser, gotSession uuid.UUID
	repo := &mockLinkRepository{
		claimFn: func(ctx context.Context, u, s uuid.UUID) (repository.ClaimResult, error) {
			gotUser, gotSession = u, s
			return repository.ClaimResult{
				LinksClaimed: 3,
				Aliases:      []string{"aaaaaaa", "bbbbbbb", "ccccccc"},
			}, nil
		},
	}
	svc := newTestService(repo, nil)

	claimed, err := svc.ClaimLinks(context.Background(), userID, sessionID)
	if err != nil {
		t.Fatalf("ClaimLinks returned error: %v", err)
	}
	if claimed != 3 {
		t.Fatalf("expected 3 claimed, got %d", claimed)
	}
	if gotUser != userID || gotSession != sessionID {
		t.Fatal("claim not scoped to the provided identity")
	}
}

func TestLinkService_ClaimLinks_Idempotent(t *testing.T) {
	repo := &mockLinkRepository{
		claimFn: func(ctx context.Context, u, s uuid.UUID) (repository.ClaimResult, error) {
			return repository.ClaimResult{}, nil
		},
	}
	svc := newTestService(repo, nil)

	claimed, err := svc.ClaimLinks(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("ClaimLinks returned error: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("expected no-op claim, got %d", claimed)
	}
}

type memoryLinkCache struct {
	entries map[string]*model.Link
}

func newMemoryLinkCache() *memoryLinkCache {
	return &memoryLinkCache{entries: make(map[string]*model.Link)}
}

func (c *memoryLinkCache) Get(ctx context.Context, alias string) (*model.Link, error) {
	link, ok := c.entries[alias]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return link, nil
}

func (c *memoryLinkCache) Set(ctx context.Context, link *model.Link) error {
	c.entries[link.ShortAlias] = link
	return nil
}

func (c *memoryLinkCache) Delete(ctx context.Context, aliases ...string) error {
	for _, alias := range aliases {
		delete(c.entries, alias)
	}
	return nil
}

func TestLinkService_ClaimLinks_EvictsCachedOwnership(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	future := time.Now().UTC().Add(time.Hour)

	claimed := &model.Link{
		ID:         uuid.New(),
		ShortAlias: "abc1234",
		LongURL:    "https://example.com",
		UserID:     &userID,
		ExpiresAt:  future,
	}
	repo := &mockLinkRepository{
		claimFn: func(ctx context.Context, u, s uuid.UUID) (repository.ClaimResult, error) {
			return repository.ClaimResult{LinksClaimed: 1, Aliases: []string{"abc1234"}}, nil
		},
		getByAliasFn: func(ctx context.Context, alias string) (*model.Link, error) {
			return claimed, nil
		},
	}

	// The cache holds the pre-claim copy still attributed to the session.
	cache := newMemoryLinkCache()
	_ = cache.Set(context.Background(), &model.Link{
		ID:                 claimed.ID,
		ShortAlias:         "abc1234",
		LongURL:            "https://example.com",
		AnonymousSessionID: &sessionID,
		ExpiresAt:          future,
	})

	svc := NewLinkService(repo, &mockClickRepository{}, cache, LinkPolicy{}, nil)

	if _, err := svc.ClaimLinks(context.Background(), userID, sessionID); err != nil {
		t.Fatalf("ClaimLinks returned error: %v", err)
	}

	// Resolving right after the claim must see the new owner, not the cached
	// session attribution.
	link, err := svc.Resolve(context.Background(), "abc1234")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if link.UserID == nil || *link.UserID != userID {
		t.Fatalf("resolved link owner = %v, want claimed user %s", link.UserID, userID)
	}
	if link.AnonymousSessionID != nil {
		t.Fatal("resolved link still attributed to the anonymous session")
	}
}

func TestLinkService_ListLinksForUser(t *testing.T) {
	userID := uuid.New()
	linkA, linkB := uuid.New(), uuid.New()
	repo := &mockLinkRepository{
		listByUserFn: func(ctx context.Context, id uuid.UUID) ([]model.Link, error) {
			return []model.Link{
				{ID: linkA, ShortAlias: "aaaaaaa"},
				{ID: linkB, ShortAlias: "bbbbbbb"},
			}, nil
		},
	}
	clicks := &mockClickRepository{
		countFn: func(ctx context.Context, linkID uuid.UUID) (int64, error) {
			if linkID == linkA {
				return 5, nil
			}
			return 0, nil
		},
	}
	svc := newTestService(repo, clicks)

	summaries, err := svc.ListLinksForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListLinksForUser returned error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 links, got %d", len(summaries))
	}
	if summaries[0].TotalClicks != 5 || summaries[1].TotalClicks != 0 {
		t.Fatalf("unexpected click counts: %+v", summaries)
	}
}

func TestLinkService_WarmAliasFilter(t *testing.T) {
	repo := &mockLinkRepository{
		listAliasesFn: func(ctx context.Context) ([]string, error) {
			return []string{"seeded1", "seeded2"}, nil
		},
		existsFn: func(ctx context.Context, alias string) (bool, error) {
			return alias == "seeded1" || alias == "seeded2", nil
		},
	}
	svc := newTestService(repo, nil)
	if err := svc.WarmAliasFilter(context.Background()); err != nil {
		t.Fatalf("WarmAliasFilter returned error: %v", err)
	}

	// A seeded alias must still be rejected as taken.
	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		LongURL: "https://example.com",
		Alias:   "seeded1",
	})
	if !errors.Is(err, repository.ErrAliasTaken) {
		t.Fatalf("expected ErrAliasTaken for seeded alias, got %v", err)
	}
}
