// Package resolver turns parsed card references into card payloads,
// serving from the cache when possible and going to the provider
// otherwise. Successful resolutions are cached; not-found responses
// never are, so misspellings get a fresh fuzzy match on every message.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jimsug/mtg-signal-bot/internal/parser"
	"github.com/jimsug/mtg-signal-bot/internal/scryfall"
	"github.com/jimsug/mtg-signal-bot/internal/storage"
)

// Provider is the outbound card-data collaborator. *scryfall.Client
// satisfies it; tests substitute a fake.
type Provider interface {
	GetCardNamed(ctx context.Context, name, setCode string) (*scryfall.Card, error)
	GetCardBySetNumber(ctx context.Context, setCode, collectorNumber string) (*scryfall.Card, error)
	GetRulings(ctx context.Context, cardID string) ([]scryfall.Ruling, error)
}

// NotFoundError means the provider definitively knows no such card.
type NotFoundError struct {
	Name    string
	Details string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Details != "" {
		return e.Details
	}
	return fmt.Sprintf("no card found for %q", e.Name)
}

// ProviderError means the lookup failed for reasons other than the card
// not existing: network trouble, provider 5xx after retries, timeout.
type ProviderError struct {
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("card lookup failed: %v", e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Resolver resolves card references against the cache and provider.
type Resolver struct {
	provider Provider
	cache    *storage.CacheStore

	// group collapses concurrent misses for the same key into a single
	// provider call.
	group singleflight.Group

	// now is swappable in tests.
	now func() time.Time
}

// New creates a resolver over the given provider and cache store.
func New(provider Provider, cache *storage.CacheStore) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    cache,
		now:      time.Now,
	}
}

// CacheKey derives the normalized cache key for a reference: name
// case-folded and whitespace-collapsed, set and collector number
// case-folded. Different printings cache independently.
func CacheKey(ref parser.CardReference) string {
	name := strings.ToLower(strings.Join(strings.Fields(ref.RawName), " "))
	return fmt.Sprintf("named:%s:%s:%s",
		name, strings.ToLower(ref.SetCode), strings.ToLower(ref.CollectorNumber))
}

// rulingsKey is the cache key for a card's rulings.
func rulingsKey(cardID string) string {
	return "rulings:" + cardID
}

// Resolve returns the card for a reference. A cache hit returns without
// any outbound call; a miss issues exactly one provider request (shared
// across concurrent duplicates) and caches the result on success.
func (r *Resolver) Resolve(ctx context.Context, ref parser.CardReference) (*scryfall.Card, error) {
	key := CacheKey(ref)

	if card, ok := r.cachedCard(ctx, key); ok {
		return card, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Another waiter may have populated the cache while we queued.
		if card, ok := r.cachedCard(ctx, key); ok {
			return card, nil
		}
		return r.fetchAndCache(ctx, ref, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*scryfall.Card), nil
}

// Rulings returns the Oracle rulings for a card, cached under the
// card's Scryfall ID with the same TTL as card payloads.
func (r *Resolver) Rulings(ctx context.Context, cardID string) ([]scryfall.Ruling, error) {
	key := rulingsKey(cardID)

	if data, ok, err := r.cache.Get(ctx, key, r.now()); err != nil {
		log.Printf("[Resolver] cache read for %s failed: %v", key, err)
	} else if ok {
		var rulings []scryfall.Ruling
		if err := json.Unmarshal(data, &rulings); err == nil {
			return rulings, nil
		}
		_, _ = r.cache.PurgeOne(ctx, key)
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		rulings, err := r.provider.GetRulings(ctx, cardID)
		if err != nil {
			return nil, classify(err, cardID)
		}
		if data, err := json.Marshal(rulings); err == nil {
			if err := r.cache.Put(ctx, key, data, r.now()); err != nil {
				log.Printf("[Resolver] cache write for %s failed: %v", key, err)
			}
		}
		return rulings, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]scryfall.Ruling), nil
}

// cachedCard returns the cached card for key, dropping corrupt entries.
func (r *Resolver) cachedCard(ctx context.Context, key string) (*scryfall.Card, bool) {
	data, ok, err := r.cache.Get(ctx, key, r.now())
	if err != nil {
		// A broken cache must not take lookups down with it.
		log.Printf("[Resolver] cache read for %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var card scryfall.Card
	if err := json.Unmarshal(data, &card); err != nil {
		log.Printf("[Resolver] corrupt cache entry %s dropped: %v", key, err)
		_, _ = r.cache.PurgeOne(ctx, key)
		return nil, false
	}
	card.Raw = data
	return &card, true
}

// fetchAndCache issues the provider request and caches a success.
func (r *Resolver) fetchAndCache(ctx context.Context, ref parser.CardReference, key string) (*scryfall.Card, error) {
	var card *scryfall.Card
	var err error

	if ref.SetCode != "" && ref.CollectorNumber != "" {
		// Direct printing lookup is the most precise Scryfall offers.
		card, err = r.provider.GetCardBySetNumber(ctx, ref.SetCode, ref.CollectorNumber)
	} else {
		card, err = r.provider.GetCardNamed(ctx, ref.RawName, ref.SetCode)
	}
	if err != nil {
		return nil, classify(err, ref.RawName)
	}

	payload := []byte(card.Raw)
	if len(payload) == 0 {
		if payload, err = json.Marshal(card); err != nil {
			return nil, &ProviderError{Err: fmt.Errorf("serialize card payload: %w", err)}
		}
	}
	if err := r.cache.Put(ctx, key, payload, r.now()); err != nil {
		// Still return the card; the next lookup just misses again.
		log.Printf("[Resolver] cache write for %s failed: %v", key, err)
	}

	return card, nil
}

// classify maps provider errors onto the resolver taxonomy.
func classify(err error, name string) error {
	var nf *scryfall.NotFoundError
	if errors.As(err, &nf) {
		return &NotFoundError{Name: name, Details: nf.Details}
	}
	return &ProviderError{Err: err}
}
