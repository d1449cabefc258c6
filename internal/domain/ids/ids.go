package ids

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// CodeAlphabet is the character set used for public event codes. It excludes
// glyphs that are easy to misread when a code is shared verbally or on a
// printed flyer: 0/O, 1/I/L, and U (confusable with V).
const CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

// CodeLength is the fixed length of a public event code. 30^8 candidates keeps
// the collision probability negligible relative to expected event volume.
const CodeLength = 8

// DefaultMaxProbes bounds the generate-and-probe loop in Issuer.Issue.
const DefaultMaxProbes = 10

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)
	codeRegex = regexp.MustCompile(`^[` + CodeAlphabet + `]{8}$`)

	ErrInvalidULID = errors.New("invalid ULID")
	ErrInvalidCode = errors.New("invalid event code")

	// ErrCodeSpaceExhausted is returned when every probed candidate was already
	// taken. Callers should treat it as retryable with a fresh probe sequence.
	ErrCodeSpaceExhausted = errors.New("no free event code found within probe limit")
)

// NewULID generates a new ULID string for internal row identifiers.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID returns true when value is a valid ULID (case-insensitive Crockford Base32).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

// ValidateULID validates a ULID string.
func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// IsCode returns true when value is a well-formed public event code.
func IsCode(value string) bool {
	return codeRegex.MatchString(value)
}

// NormalizeCode uppercases and trims a user-supplied code, then validates it.
func NormalizeCode(value string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(value))
	if !IsCode(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// CodeExistsFunc reports whether a candidate code is already assigned.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// Issuer mints public event codes by drawing uniform candidates and probing
// the store for collisions. It never reserves a code: the returned value is
// provisional until the owning insert commits, and a caller that loses the
// residual probe-to-insert race must restart issuance rather than reuse the
// candidate.
type Issuer struct {
	exists    CodeExistsFunc
	maxProbes int
}

// NewIssuer creates an Issuer backed by the given existence check.
func NewIssuer(exists CodeExistsFunc) *Issuer {
	return &Issuer{exists: exists, maxProbes: DefaultMaxProbes}
}

// Issue returns a code that was unassigned at probe time, or
// ErrCodeSpaceExhausted after maxProbes collisions.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	for attempt := 0; attempt < i.maxProbes; attempt++ {
		candidate, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate code candidate: %w", err)
		}

		taken, err := i.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe code %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func randomCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(CodeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for range CodeLength {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
