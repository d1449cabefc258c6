package ids

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id, err := NewULID()

	require.NoError(t, err)
	require.Len(t, id, 26)
	require.True(t, IsULID(id))
}

func TestValidateULID(t *testing.T) {
	require.NoError(t, ValidateULID("01HYX3KQW7ERTV9XNBM2P8QJZF"))
	require.ErrorIs(t, ValidateULID("not-a-ulid"), ErrInvalidULID)
	require.ErrorIs(t, ValidateULID(""), ErrInvalidULID)
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode("  ab23cdef ")

	require.NoError(t, err)
	require.Equal(t, "AB23CDEF", code)
}

func TestNormalizeCodeRejectsConfusableGlyphs(t *testing.T) {
	for _, bad := range []string{"AB23CDE0", "AB23CDEO", "AB23CDE1", "AB23CDEI", "AB23CDEL", "AB23CDEU"} {
		_, err := NormalizeCode(bad)
		require.ErrorIs(t, err, ErrInvalidCode, "code %q should be rejected", bad)
	}
}

func TestNormalizeCodeRejectsWrongLength(t *testing.T) {
	_, err := NormalizeCode("AB23CDE")
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = NormalizeCode("AB23CDEFG")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestIssuerReturnsFirstFreeCode(t *testing.T) {
	probes := 0
	issuer := NewIssuer(func(ctx context.Context, code string) (bool, error) {
		probes++
		return false, nil
	})

	code, err := issuer.Issue(context.Background())

	require.NoError(t, err)
	require.True(t, IsCode(code))
	require.Equal(t, 1, probes)
}

func TestIssuerRedrawsOnCollision(t *testing.T) {
	probes := 0
	issuer := NewIssuer(func(ctx context.Context, code string) (bool, error) {
		probes++
		return probes < 3, nil
	})

	code, err := issuer.Issue(context.Background())

	require.NoError(t, err)
	require.True(t, IsCode(code))
	require.Equal(t, 3, probes)
}

func TestIssuerExhaustsAfterBoundedProbes(t *testing.T) {
	probes := 0
	issuer := NewIssuer(func(ctx context.Context, code string) (bool, error) {
		probes++
		return true, nil
	})

	_, err := issuer.Issue(context.Background())

	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	require.Equal(t, DefaultMaxProbes, probes)
}

func TestIssuerPropagatesProbeErrors(t *testing.T) {
	probeErr := errors.New("store unavailable")
	issuer := NewIssuer(func(ctx context.Context, code string) (bool, error) {
		return false, probeErr
	})

	_, err := issuer.Issue(context.Background())

	require.ErrorIs(t, err, probeErr)
}

func TestIssuerProducesDistinctCodes(t *testing.T) {
	seen := make(map[string]struct{})
	issuer := NewIssuer(func(ctx context.Context, code string) (bool, error) {
		_, taken := seen[code]
		return taken, nil
	})

	for range 10000 {
		code, err := issuer.Issue(context.Background())
		require.NoError(t, err)
		require.True(t, IsCode(code))

		_, dup := seen[code]
		require.False(t, dup, "code %s issued twice", code)
		seen[code] = struct{}{}
	}
	require.Len(t, seen, 10000)
}
