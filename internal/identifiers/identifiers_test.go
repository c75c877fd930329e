package identifiers

import (
	"context"
	"strings"
	"testing"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type seqRand struct{ next int }

func (r *seqRand) Intn(n int) int {
	v := r.next % n
	r.next++
	return v
}

func setExists(taken ...string) ExistsFunc {
	set := map[string]bool{}
	for _, s := range taken {
		set[s] = true
	}
	return func(_ context.Context, candidate string) (bool, error) {
		return set[candidate], nil
	}
}

func TestNewTrackingNumber_LengthAndAlphabet(t *testing.T) {
	g := New(nil)
	for i := 0; i < 200; i++ {
		tn := g.NewTrackingNumber()
		require.Len(t, tn, models.TrackingNumberLength)
		for _, c := range tn {
			require.True(t, strings.ContainsRune(trackingAlphabet, c), "unexpected %q in %s", c, tn)
		}
	}
}

func TestNewTrackingNumber_Deterministic(t *testing.T) {
	g := New(&seqRand{})
	require.Equal(t, "ABCDEFGHIJKLMNOP", g.NewTrackingNumber())
	require.Equal(t, "QRSTUVWXYZ012345", g.NewTrackingNumber())
}

func TestTrackingNumber_SkipsTaken(t *testing.T) {
	g := New(&seqRand{})
	tn, err := g.TrackingNumber(context.Background(), setExists("ABCDEFGHIJKLMNOP"))
	require.NoError(t, err)
	require.Equal(t, "QRSTUVWXYZ012345", tn)
}

func TestTrackingNumber_Exhausted(t *testing.T) {
	calls := 0
	always := func(context.Context, string) (bool, error) { calls++; return true, nil }

	g := New(nil).WithLimits(3, 0)
	_, err := g.TrackingNumber(context.Background(), always)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, calls)
}

func TestTrackingNumber_ExistsError(t *testing.T) {
	boom := errors.New("db down")
	g := New(nil)
	_, err := g.TrackingNumber(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestTrackingNumber_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).TrackingNumber(ctx, setExists())
	require.ErrorIs(t, err, context.Canceled)
}

func TestUniqueSlug_Sequential(t *testing.T) {
	g := New(nil)
	ctx := context.Background()

	s, err := g.UniqueSlug(ctx, "Acme Corp", setExists())
	require.NoError(t, err)
	require.Equal(t, "acme-corp", s)

	s, err = g.UniqueSlug(ctx, "Acme Corp", setExists("acme-corp"))
	require.NoError(t, err)
	require.Equal(t, "acme-corp-1", s)

	s, err = g.UniqueSlug(ctx, "Acme Corp", setExists("acme-corp", "acme-corp-1"))
	require.NoError(t, err)
	require.Equal(t, "acme-corp-2", s)
}

func TestUniqueSlug_EmptyBase(t *testing.T) {
	s, err := New(nil).UniqueSlug(context.Background(), "!!!", setExists())
	require.NoError(t, err)
	require.Equal(t, "customer", s)
}

func TestUniqueSlug_LongBaseKeepsLimit(t *testing.T) {
	base := strings.Repeat("a", 80)
	g := New(nil)

	s, err := g.UniqueSlug(context.Background(), base, setExists())
	require.NoError(t, err)
	require.Len(t, s, models.MaxSlugLength)

	s, err = g.UniqueSlug(context.Background(), base, setExists(strings.Repeat("a", 50)))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 48)+"-1", s)
	require.LessOrEqual(t, len(s), models.MaxSlugLength)
}

func TestUniqueSlug_Exhausted(t *testing.T) {
	g := New(nil).WithLimits(0, 2)
	_, err := g.UniqueSlug(context.Background(), "acme", setExists("acme", "acme-1", "acme-2"))
	require.ErrorIs(t, err, ErrExhausted)
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Hello   World  ", "hello-world"},
		{"Café  Déjà-vu!", "cafe-deja-vu"},
		{"Müller & Söhne GmbH", "muller-sohne-gmbh"},
		{"already-a-slug", "already-a-slug"},
		{"snake_case_name", "snake_case_name"},
		{"--dash--", "dash"},
		{"日本", ""},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, Slugify(tc.in))
		})
	}
}
