// Package errors implements the error taxonomy (C3 Error Classifier) and the
// sliding-window error budget (C5) that the retry policy and self-healing
// controller key off of.
package errors

import (
	"regexp"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

// Level is the severity tier assigned to a classified error.
type Level string

const (
	LevelOperational Level = "L1_OPERATIONAL"
	LevelRecoverable Level = "L2_RECOVERABLE"
	LevelUserInput   Level = "L3_USER_INPUT"
	LevelAuth        Level = "L3_AUTH"
	LevelFatal       Level = "L4_FATAL"
)

// Category further qualifies a Level.
type Category string

const (
	CategoryNetwork       Category = "NETWORK"
	CategoryTimeout       Category = "TIMEOUT"
	CategoryFileSystem    Category = "FILE_SYSTEM"
	CategoryValidation    Category = "VALIDATION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryConfiguration Category = "CONFIGURATION"
	CategorySystem        Category = "SYSTEM"
	CategoryUnknown        Category = "UNKNOWN"
)

// Classification is the output of the classifier: an error annotated with
// retry guidance.
type Classification struct {
	ID           string
	Level        Level
	Category     Category
	ShouldRetry  bool
	MaxRetries   int
	Message      string
	Timestamp    time.Time
	OriginalErr  error
}

type pattern struct {
	re       *regexp.Regexp
	level    Level
	category Category
}

// Classifier maps raw errors to a Classification using an ordered set of
// rules: custom user-registered patterns first, then built-ins, then a
// default.
type Classifier struct {
	clock   clock.Clock
	custom  []pattern
	builtin []pattern
}

// New creates a Classifier with the built-in rule set from spec §4.3
// pre-loaded, evaluated in the order listed there.
func New(c clock.Clock) *Classifier {
	return &Classifier{
		clock: c,
		builtin: []pattern{
			{regexp.MustCompile(`(?i)ECONNREFUSED|ENOTFOUND|ECONNRESET|EPIPE`), LevelRecoverable, CategoryNetwork},
			{regexp.MustCompile(`(?i)ETIMEDOUT|timeout`), LevelRecoverable, CategoryTimeout},
			{regexp.MustCompile(`(?i)ENOENT|EBUSY|EMFILE`), LevelRecoverable, CategoryFileSystem},
			{regexp.MustCompile(`(?i)validation|invalid|malformed`), LevelUserInput, CategoryValidation},
			{regexp.MustCompile(`(?i)401|403|unauthorized|forbidden`), LevelAuth, CategoryAuthentication},
			{regexp.MustCompile(`(?i)config|missing.*config`), LevelOperational, CategoryConfiguration},
			{regexp.MustCompile(`(?i)fatal|SIGSEGV|out of memory|ENOMEM`), LevelFatal, CategorySystem},
			{regexp.MustCompile(`(?i)429|rate.limit`), LevelRecoverable, CategoryNetwork},
		},
	}
}

// RegisterPattern adds a custom rule evaluated before the built-ins. Later
// registrations are checked after earlier ones, preserving registration
// order as "first match wins".
func (c *Classifier) RegisterPattern(re *regexp.Regexp, level Level, category Category) {
	c.custom = append(c.custom, pattern{re: re, level: level, category: category})
}

// defaultRetry returns the (shouldRetry, maxRetries) pair for a level, per
// spec §4.3's table.
func defaultRetry(level Level) (bool, int) {
	switch level {
	case LevelOperational:
		return true, 1
	case LevelRecoverable:
		return true, 3
	default: // UserInput, Auth, Fatal
		return false, 0
	}
}

// Classify maps err to a Classification. nil in, nil-ish Classification with
// no error out is not a valid call; callers must only classify non-nil
// errors.
func (c *Classifier) Classify(err error) Classification {
	msg := err.Error()

	for _, p := range c.custom {
		if p.re.MatchString(msg) {
			return c.build(err, msg, p.level, p.category)
		}
	}
	for _, p := range c.builtin {
		if p.re.MatchString(msg) {
			return c.build(err, msg, p.level, p.category)
		}
	}
	return c.build(err, msg, LevelOperational, CategoryUnknown)
}

func (c *Classifier) build(err error, msg string, level Level, category Category) Classification {
	retry, maxRetries := defaultRetry(level)
	return Classification{
		ID:          c.clock.NewID(),
		Level:       level,
		Category:    category,
		ShouldRetry: retry,
		MaxRetries:  maxRetries,
		Message:     msg,
		Timestamp:   c.clock.Now(),
		OriginalErr: err,
	}
}
