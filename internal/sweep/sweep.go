package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/inventory"
)

// Service is the part of the inventory service the sweep drives.
type Service interface {
	Today() domain.Date
	ExpiringBatches(ctx context.Context, horizonDays int) ([]domain.ExpiringBatch, error)
	ExpireOff(ctx context.Context, batchID, actorID string) (*inventory.ExpireResult, error)
}

type Failure struct {
	BatchID string `json:"batch_id"`
	ItemID  string `json:"item_id"`
	Error   string `json:"error"`
}

type Result struct {
	Expired []inventory.ExpireResult `json:"expired"`
	Failed  []Failure                `json:"failed"`
}

// Sweeper writes off batches that are past their expiry date and still hold
// stock. A batch is usable through its expiry date and is swept the day after.
type Sweeper struct {
	svc Service
	log zerolog.Logger
}

func New(svc Service, log zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, log: log}
}

// Run performs one pass. Failures on individual batches are collected and the
// pass continues; only a failure to list candidates aborts it.
func (s *Sweeper) Run(ctx context.Context, actorID string) (Result, error) {
	var res Result
	candidates, err := s.svc.ExpiringBatches(ctx, 0)
	if err != nil {
		return res, err
	}
	today := s.svc.Today()
	for _, b := range candidates {
		if !b.IsExpired(today) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.svc.ExpireOff(ctx, b.ID, actorID)
		if err != nil {
			s.log.Error().Err(err).Str("batch_id", b.ID).Str("item_id", b.ItemID).Msg("expiry write-off failed")
			res.Failed = append(res.Failed, Failure{BatchID: b.ID, ItemID: b.ItemID, Error: err.Error()})
			continue
		}
		s.log.Info().
			Str("batch_id", b.ID).
			Str("batch_number", b.BatchNumber).
			Str("item_code", b.ItemCode).
			Str("expiry_date", b.ExpiryDate.String()).
			Int64("quantity", -out.Movement.Quantity).
			Msg("expired batch written off")
		res.Expired = append(res.Expired, *out)
	}
	return res, nil
}

// Loop runs a pass immediately and then on every tick until ctx is done.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration, actorID string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.Run(ctx, actorID)
		if err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("expiry sweep failed")
		} else if err == nil {
			s.log.Info().Int("expired", len(res.Expired)).Int("failed", len(res.Failed)).Msg("expiry sweep finished")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
