package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/advisor"
	"hmsinventory/m/internal/batches"
	"hmsinventory/m/internal/ledger"
	"hmsinventory/m/internal/store"
)

const defaultMaxRetries = 3

type Options struct {
	// MaxRetries bounds how many times a write is attempted when another
	// writer advanced the same item first.
	MaxRetries int
	Now        func() time.Time
	Logger     zerolog.Logger
	Cache      advisor.Cache
}

// Service is the only write path for stock. Every request runs as one
// transaction; a per-item lock plus the item version check keeps concurrent
// writers on the same item from interleaving.
type Service struct {
	store      *store.Store
	ledger     *ledger.Ledger
	tracker    *batches.Tracker
	advisor    *advisor.Advisor
	locks      *keyedLocker
	maxRetries int
	now        func() time.Time
	log        zerolog.Logger
}

func NewService(st *store.Store, opts Options) *Service {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := ledger.New(opts.Now)
	return &Service{
		store:      st,
		ledger:     l,
		tracker:    batches.NewTracker(l, opts.Now),
		advisor:    advisor.New(st.Queries(), opts.Cache, opts.Now),
		locks:      newKeyedLocker(),
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

// Today is the calendar day used for expiry decisions.
func (s *Service) Today() domain.Date {
	return s.tracker.Today()
}

// write runs fn in a transaction while holding the item's lock, retrying on
// version conflicts. Alerts are invalidated after a successful commit even if
// the caller has gone away: a committed movement stands.
func (s *Service) write(ctx context.Context, itemID, op string, fn func(q *store.Queries) error) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.store.InTx(ctx, fn)
		if !errors.Is(err, store.ErrStaleVersion) {
			break
		}
		s.log.Warn().Str("op", op).Str("item_id", itemID).Int("attempt", attempt).Msg("stock version conflict, retrying")
	}
	if errors.Is(err, store.ErrStaleVersion) {
		return domain.ConcurrencyConflict(itemID, s.maxRetries, err)
	}
	if err != nil {
		return err
	}
	s.advisor.Invalidate(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) logMovements(op string, movements ...domain.Movement) {
	for _, m := range movements {
		evt := s.log.Debug().
			Str("op", op).
			Str("item_id", m.ItemID).
			Int64("seq", m.Seq).
			Str("type", string(m.Type)).
			Int64("quantity", m.Quantity).
			Int64("resulting_stock", m.ResultingStock).
			Str("actor_id", m.ActorID)
		if m.BatchID != nil {
			evt = evt.Str("batch_id", *m.BatchID)
		}
		evt.Msg("stock movement recorded")
	}
}

func lookupItem(ctx context.Context, q *store.Queries, itemID string) (*domain.Item, error) {
	item, err := q.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.UnknownItem(itemID)
	}
	return item, err
}

// lookupItemBatch loads a batch and checks it belongs to the item.
func lookupItemBatch(ctx context.Context, q *store.Queries, itemID, batchID string) (*domain.Batch, error) {
	b, err := q.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.UnknownBatch(batchID)
	}
	if err != nil {
		return nil, err
	}
	if b.ItemID != itemID {
		e := domain.UnknownBatch(batchID)
		e.Message = "batch " + batchID + " does not belong to item " + itemID
		e.ItemID = itemID
		return nil, e
	}
	return b, nil
}
