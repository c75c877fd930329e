// Package identifiers mints tracking numbers and customer slugs.
//
// Uniqueness is checked against the store through an ExistsFunc before a value
// is returned. The check is not atomic; callers rely on UNIQUE constraints and
// retry on conflict.
package identifiers

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

const trackingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	DefaultTrackingAttempts = 32
	DefaultSlugSuffixes     = 1000
)

var ErrExhausted = errors.New("identifier space exhausted")

type Rand interface {
	Intn(n int) int
}

// ExistsFunc reports whether candidate is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

type Generator struct {
	r                Rand
	trackingAttempts int
	slugSuffixes     int
}

// New returns a generator backed by r. A nil r means crypto/rand.
func New(r Rand) *Generator {
	if r == nil {
		r = cryptoRand{}
	}
	return &Generator{
		r:                r,
		trackingAttempts: DefaultTrackingAttempts,
		slugSuffixes:     DefaultSlugSuffixes,
	}
}

func (g *Generator) WithLimits(trackingAttempts, slugSuffixes int) *Generator {
	if trackingAttempts > 0 {
		g.trackingAttempts = trackingAttempts
	}
	if slugSuffixes > 0 {
		g.slugSuffixes = slugSuffixes
	}
	return g
}

// NewTrackingNumber draws one candidate without checking uniqueness.
func (g *Generator) NewTrackingNumber() string {
	var b strings.Builder
	b.Grow(models.TrackingNumberLength)
	for i := 0; i < models.TrackingNumberLength; i++ {
		b.WriteByte(trackingAlphabet[g.r.Intn(len(trackingAlphabet))])
	}
	return b.String()
}

func (g *Generator) TrackingNumber(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.trackingAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.NewTrackingNumber()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", errors.Wrap(err, "check tracking number")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrExhausted, "tracking number after %d attempts", g.trackingAttempts)
}

// UniqueSlug slugifies base and appends -1, -2, ... until exists reports it free.
func (g *Generator) UniqueSlug(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	slug := Slugify(base)
	if slug == "" {
		slug = "customer"
	}
	slug = truncateSlug(slug, 0)

	taken, err := exists(ctx, slug)
	if err != nil {
		return "", errors.Wrap(err, "check slug")
	}
	if !taken {
		return slug, nil
	}

	for n := 1; n <= g.slugSuffixes; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		suffix := "-" + strconv.Itoa(n)
		candidate := truncateSlug(slug, len(suffix)) + suffix
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", errors.Wrap(err, "check slug")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrExhausted, "slug %q after %d suffixes", slug, g.slugSuffixes)
}

// truncateSlug keeps room for a suffix of the given length within MaxSlugLength.
func truncateSlug(slug string, reserve int) string {
	limit := models.MaxSlugLength - reserve
	if len(slug) <= limit {
		return slug
	}
	return strings.TrimRight(slug[:limit], "-_")
}

type cryptoRand struct{}

func (cryptoRand) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand.Reader does not fail on supported platforms.
		panic(errors.Wrap(err, "crypto rand"))
	}
	return int(v.Int64())
}
