// Package detect recognizes the completion marker and progress lines in
// device console output.
package detect

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"

	apperrors "github.com/Iron-Ham/serialwatch/internal/errors"
)

// Default patterns used when the configuration does not override them.
const (
	DefaultCompletionPattern = `All tests completed\.`
	DefaultProgressPattern   = `Case (\d+)/(\d+)`
)

// CompletionMatcher reports whether the accumulated output contains the
// completion marker.
type CompletionMatcher struct {
	re *regexp.Regexp
}

// NewCompletionMatcher compiles pattern. An empty pattern selects
// DefaultCompletionPattern.
func NewCompletionMatcher(pattern string) (*CompletionMatcher, error) {
	if pattern == "" {
		pattern = DefaultCompletionPattern
	}
	re, err := compile("completion_pattern", pattern)
	if err != nil {
		return nil, err
	}
	return &CompletionMatcher{re: re}, nil
}

// Found searches the whole buffer, so a marker split across reads is
// still recognized once both halves have arrived.
func (m *CompletionMatcher) Found(buffer string) bool {
	return m.re.MatchString(buffer)
}

// Pattern returns the source pattern.
func (m *CompletionMatcher) Pattern() string {
	return m.re.String()
}

// Progress is a "test case N of M" report.
type Progress struct {
	Current int
	Total   int
}

// Percent returns the integer percentage of completed cases, rounded down.
// Counts too large for Current*100 to fit an int are computed exactly;
// a result that itself overflows saturates at math.MaxInt.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(int64(p.Current)), big.NewInt(100))
	n.Quo(n, big.NewInt(int64(p.Total)))
	if !n.IsInt64() || n.Int64() > math.MaxInt {
		return math.MaxInt
	}
	return int(n.Int64())
}

// String formats the pair as "N/M".
func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Current, p.Total)
}

// Valid reports whether 1 <= Current <= Total.
func (p Progress) Valid() bool {
	return p.Current >= 1 && p.Current <= p.Total
}

// ProgressExtractor pulls progress pairs out of a single fragment.
type ProgressExtractor struct {
	re *regexp.Regexp
}

// NewProgressExtractor compiles pattern, which must have exactly two
// capture groups (current, total). An empty pattern selects
// DefaultProgressPattern.
func NewProgressExtractor(pattern string) (*ProgressExtractor, error) {
	if pattern == "" {
		pattern = DefaultProgressPattern
	}
	re, err := compile("progress_pattern", pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() != 2 {
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("must have 2 capture groups, has %d", re.NumSubexp()),
			apperrors.ErrInvalidPattern,
		).WithField("progress_pattern").WithValue(pattern)
	}
	return &ProgressExtractor{re: re}, nil
}

// Latest returns the last valid progress pair in fragment. Matches whose
// numbers do not parse or fall outside 1 <= current <= total are skipped.
// Only the fragment is searched, never earlier output, so a stale pair
// cannot be reported again.
func (e *ProgressExtractor) Latest(fragment string) (Progress, bool) {
	matches := e.re.FindAllStringSubmatch(fragment, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		cur, err1 := strconv.Atoi(matches[i][1])
		total, err2 := strconv.Atoi(matches[i][2])
		if err1 != nil || err2 != nil {
			continue
		}
		p := Progress{Current: cur, Total: total}
		if p.Valid() {
			return p, true
		}
	}
	return Progress{}, false
}

func compile(field, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("does not compile: %v", err), apperrors.ErrInvalidPattern).
			WithField(field).
			WithValue(pattern)
	}
	return re, nil
}
