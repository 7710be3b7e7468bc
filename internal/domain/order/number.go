package order

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
)

// PropNextOrderNumberSeed is the global property holding the next order
// number.
const PropNextOrderNumberSeed = "order.nextOrderNumberSeed"

// OrderNumberGenerator hands out order numbers. Implementations must be
// safe for concurrent use.
type OrderNumberGenerator interface {
	NewOrderNumber(ctx context.Context) (string, error)
}

// SequenceSource atomically increments a named sequence and returns the
// value before the increment.
type SequenceSource interface {
	GetNextSequenceValue(ctx context.Context, name string) (int64, error)
}

// SequenceNumberGenerator formats prefix + the next value of the
// order.nextOrderNumberSeed sequence.
type SequenceNumberGenerator struct {
	prefix string
	seq    SequenceSource
	logger zerolog.Logger
}

func NewSequenceNumberGenerator(prefix string, seq SequenceSource, logger zerolog.Logger) *SequenceNumberGenerator {
	return &SequenceNumberGenerator{prefix: prefix, seq: seq, logger: logger}
}

func (g *SequenceNumberGenerator) NewOrderNumber(ctx context.Context) (string, error) {
	n, err := g.seq.GetNextSequenceValue(ctx, PropNextOrderNumberSeed)
	if err != nil {
		return "", err
	}
	num := g.prefix + strconv.FormatInt(n, 10)
	g.logger.Debug().Str("order_number", num).Msg("order number issued")
	return num, nil
}
