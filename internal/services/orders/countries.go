package orders

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
)

// resolveCountry reads the country from cache first. Countries never change
// after seeding, so a cached entry is served until it expires.
func (s *Service) resolveCountry(ctx context.Context, tx storage.Tx, code string) (*models.Country, error) {
	cacheOn := s.cache != nil && s.countryTTL > 0
	if cacheOn {
		b, ok, err := s.cache.Get(ctx, countryKey(code))
		if err == nil && ok {
			var c models.Country
			if json.Unmarshal(b, &c) == nil && c.ID != 0 {
				return &c, nil
			}
		}
	}

	c, err := tx.GetCountry(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownCountry
	}
	if err != nil {
		return nil, errors.Wrap(err, "get country")
	}

	if cacheOn {
		// Кэш best-effort: ошибка записи не ломает запрос.
		b, _ := json.Marshal(c)
		_ = s.cache.Set(ctx, countryKey(code), b, s.countryTTL)
	}
	return c, nil
}

func normalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func countryKey(code string) string {
	return "country:" + code
}
