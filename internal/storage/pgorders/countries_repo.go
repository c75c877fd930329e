package pgorders

import (
	"context"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// UpsertCountries seeds reference data. Existing codes get their name updated.
func (s *Storage) UpsertCountries(ctx context.Context, countries []models.Country) error {
	if len(countries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range countries {
		batch.Queue(`
INSERT INTO countries (code, name)
VALUES ($1,$2)
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
`, strings.ToUpper(c.Code), c.Name)
	}

	br := s.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for range countries {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, "upsert country")
		}
	}
	return nil
}

func (s *Storage) ListCountries(ctx context.Context) ([]*models.Country, error) {
	rows, err := s.db.Query(ctx, `SELECT id, code, name FROM countries ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "select countries")
	}
	defer rows.Close()

	var out []*models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, errors.Wrap(err, "scan country")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
