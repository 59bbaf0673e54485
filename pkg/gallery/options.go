package gallery

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Logger is the logger used in this package.
//
// echo.Logger satisfies this.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

type options struct {
	log    Logger
	now    func() time.Time
	passId func() string
	rand   *rand.Rand
}

func newOptions(opts []Option) *options {
	o := &options{
		log:    nopLogger{},
		now:    time.Now,
		passId: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

type Option func(*options)

func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock replaces the clock used to record when reconciliation passes start and finish.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithPassId replaces the generator of reconciliation pass ids.
func WithPassId(gen func() string) Option {
	return func(o *options) {
		o.passId = gen
	}
}

// WithRand replaces the source of randomness of PickBackground.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}
