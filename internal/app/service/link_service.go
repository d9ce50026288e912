package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/linktoolkit/linktoolkit/internal/app/repository"
	"go.uber.org/zap"
)

var (
	// ErrReservedAlias signals the requested alias collides with a route prefix.
	ErrReservedAlias = errors.New("alias is a reserved word")
	// ErrInvalidAlias signals the requested alias violates the charset or length rules.
	ErrInvalidAlias = errors.New("alias must be 3-50 characters of A-Za-z0-9_-")
	// ErrInvalidExpiry signals a malformed expiry period or one beyond the maximum.
	ErrInvalidExpiry = errors.New("invalid expiry period")
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

const maxGenerateAttempts = 10

// expected live aliases; sized generously so the filter's false-positive
// rate stays low and generated candidates rarely hit the database twice.
const aliasFilterCapacity = 1_000_000

// LinkCache is the resolve-path cache contract, satisfied by
// repository.LinkCache. A nil cache disables caching.
type LinkCache interface {
	Get(ctx context.Context, alias string) (*model.Link, error)
	Set(ctx context.Context, link *model.Link) error
	Delete(ctx context.Context, aliases ...string) error
}

// LinkService owns the alias lifecycle: creation, resolution, and the bulk
// claim of anonymous-session links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	Resolve(ctx context.Context, alias string) (*model.Link, error)
	ClaimLinks(ctx context.Context, userID, sessionID uuid.UUID) (int64, error)
	ListLinksForUser(ctx context.Context, userID uuid.UUID) ([]model.LinkSummary, error)
	WarmAliasFilter(ctx context.Context) error
}

// LinkPolicy is the process-wide alias and expiry policy, loaded once from
// configuration at startup and immutable afterwards.
type LinkPolicy struct {
	ReservedAliases []string
	DefaultExpiry   Period
	MaxExpiry       Period
	AliasLength     int
}

// CreateLinkInput captures a shorten request plus its opaque owner context.
// At most one of UserID and SessionID is set.
type CreateLinkInput struct {
	LongURL   string
	Alias     string
	Expiry    string
	UserID    *uuid.UUID
	SessionID *uuid.UUID
}

type linkService struct {
	repo      repository.LinkRepository
	clicks    repository.ClickRepository
	cache     LinkCache
	generator *AliasGenerator
	logger    *zap.Logger

	reserved      map[string]struct{}
	defaultExpiry Period
	maxExpiry     Period

	// aliasFilter short-circuits existence checks for generated candidates:
	// a negative answer is definitive, a positive one still goes to the
	// database. Guarded by mu; bloom filters are not safe for concurrent use.
	mu          sync.Mutex
	aliasFilter *bloom.BloomFilter
}

// NewLinkService returns a service implementation backed by the given
// repositories. cache may be nil.
func NewLinkService(
	repo repository.LinkRepository,
	clicks repository.ClickRepository,
	cache LinkCache,
	policy LinkPolicy,
	logger *zap.Logger,
) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}

	reserved := make(map[string]struct{}, len(policy.ReservedAliases))
	for _, alias := range policy.ReservedAliases {
		reserved[strings.ToLower(alias)] = struct{}{}
	}

	defaultExpiry := policy.DefaultExpiry
	if defaultExpiry.TotalDays() <= 0 {
		defaultExpiry = Period{Months: 1}
	}
	maxExpiry := policy.MaxExpiry
	if maxExpiry.TotalDays() <= 0 {
		maxExpiry = Period{Years: 5}
	}

	return &linkService{
		repo:          repo,
		clicks:        clicks,
		cache:         cache,
		generator:     NewAliasGenerator(policy.AliasLength),
		logger:        logger,
		reserved:      reserved,
		defaultExpiry: defaultExpiry,
		maxExpiry:     maxExpiry,
		aliasFilter:   bloom.NewWithEstimates(aliasFilterCapacity, 0.01),
	}
}

// WarmAliasFilter seeds the existence filter with every live alias. Called
// once at startup; the service works without it, just with more existence
// queries during generation.
func (s *linkService) WarmAliasFilter(ctx context.Context) error {
	aliases, err := s.repo.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("warm alias filter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alias := range aliases {
		s.aliasFilter.AddString(alias)
	}
	return nil
}

// CreateLink validates or generates the alias, computes the expiry relative
// to now, and persists the record. Alias determination and persistence are
// atomic from the caller's view: the unique index decides late collisions.
func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	now := time.Now().UTC()

	expiresAt, err := s.determineExpiry(input.Expiry, now)
	if err != nil {
		return nil, err
	}

	alias, err := s.determineAlias(ctx, input.Alias)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		ID:                 uuid.New(),
		ShortAlias:         alias,
		LongURL:            input.LongURL,
		UserID:             input.UserID,
		AnonymousSessionID: input.SessionID,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
	}

	if err := s.repo.Create(ctx, link); err != nil {
		// A concurrent creator may win the unique index between our existence
		// check and the insert; surface that as the same conflict.
		return nil, err
	}

	s.mu.Lock()
	s.aliasFilter.AddString(alias)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Set(ctx, link); err != nil {
			s.logger.Warn("failed to cache new link", zap.String("alias", alias), zap.Error(err))
		}
	}

	return link, nil
}

// Resolve looks up an alias case-sensitively. An expired link is reported
// exactly like a missing one so callers cannot probe which case applied.
func (s *linkService) Resolve(ctx context.Context, alias string) (*model.Link, error) {
	now := time.Now().UTC()

	if s.cache != nil {
		if link, err := s.cache.Get(ctx, alias); err == nil {
			if link.Expired(now) {
				return nil, repository.ErrLinkNotFound
			}
			return link, nil
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("link cache read failed", zap.String("alias", alias), zap.Error(err))
		}
	}

	link, err := s.repo.GetByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	if link.Expired(now) {
		return nil, repository.ErrLinkNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, link); err != nil {
			s.logger.Warn("link cache write failed", zap.String("alias", alias), zap.Error(err))
		}
	}
	return link, nil
}

// ClaimLinks bulk-reassigns every link under sessionID to userID. Idempotent.
// Claimed aliases are evicted from the cache: analytics authorization reads
// the owner off the resolved link, so a cached pre-claim copy must not keep
// answering for up to a full TTL.
func (s *linkService) ClaimLinks(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	res, err := s.repo.ClaimAnonymous(ctx, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("claim links: %w", err)
	}
	if res.LinksClaimed == 0 {
		return 0, nil
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, res.Aliases...); err != nil {
			s.logger.Warn("failed to evict claimed aliases from cache", zap.Error(err))
		}
	}

	s.logger.Info("claimed anonymous links",
		zap.String("user_id", userID.String()),
		zap.Int64("count", res.LinksClaimed),
	)
	return res.LinksClaimed, nil
}

// ListLinksForUser returns the owner's links, newest first, each with its
// lifetime click count.
func (s *linkService) ListLinksForUser(ctx context.Context, userID uuid.UUID) ([]model.LinkSummary, error) {
	links, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	summaries := make([]model.LinkSummary, 0, len(links))
	for _, link := range links {
		count, err := s.clicks.CountByLink(ctx, link.ID)
		if err != nil {
			return nil, fmt.Errorf("count clicks for %s: %w", link.ShortAlias, err)
		}
		summaries = append(summaries, model.LinkSummary{Link: link, TotalClicks: count})
	}
	return summaries, nil
}

func (s *linkService) determineAlias(ctx context.Context, custom string) (string, error) {
	if custom != "" {
		if !aliasPattern.MatchString(custom) {
			return "", ErrInvalidAlias
		}
		if _, ok := s.reserved[strings.ToLower(custom)]; ok {
			return "", ErrReservedAlias
		}
		exists, err := s.repo.ExistsByAlias(ctx, custom)
		if err != nil {
			return "", fmt.Errorf("check alias: %w", err)
		}
		if exists {
			return "", repository.ErrAliasTaken
		}
		return custom, nil
	}

	// Expected O(1) iterations: 64^7 candidates against at most millions of
	// rows. The bound exists so a store outage cannot spin forever.
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate, err := s.generator.Generate()
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		maybeExists := s.aliasFilter.TestString(candidate)
		s.mu.Unlock()

		if maybeExists {
			exists, err := s.repo.ExistsByAlias(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("check alias: %w", err)
			}
			if exists {
				continue
			}
		}
		return candidate, nil
	}

	return "", fmt.Errorf("exhausted %d alias generation attempts", maxGenerateAttempts)
}

func (s *linkService) determineExpiry(expiry string, now time.Time) (time.Time, error) {
	if expiry == "" {
		return s.defaultExpiry.AddTo(now), nil
	}

	period, err := ParsePeriod(expiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidExpiry, expiry)
	}
	if period.TotalDays() > s.maxExpiry.TotalDays() {
		return time.Time{}, fmt.Errorf("%w: exceeds maximum of %s", ErrInvalidExpiry, s.maxExpiry)
	}
	return period.AddTo(now), nil
}
