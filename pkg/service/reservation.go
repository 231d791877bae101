package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"media-lending/pkg/apperrors"
	"media-lending/pkg/models"
	"media-lending/pkg/repository"
)

// ReservationService keeps a FIFO waiting queue per item. A reservation is
// ACTIVE until it is fulfilled, cancelled or expired; all three are final.
type ReservationService struct {
	store  repository.Store
	policy Policy
	seq    Sequencer
	log    *zap.Logger
}

func NewReservationService(store repository.Store, policy Policy, seq Sequencer, log *zap.Logger) *ReservationService {
	if seq == nil {
		seq = NewMonotonicSequencer(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{store: store, policy: policy, seq: seq, log: log}
}

// Reserve queues the user for the item. Duplicate reservations are accepted.
func (s *ReservationService) Reserve(ctx context.Context, userID, itemID uint, asOf time.Time) (*models.Reservation, error) {
	repos := s.store.Repos()

	user, err := repos.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Business(apperrors.UserNotFound, "user %d not found", userID)
	}
	item, err := repos.Items.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.Business(apperrors.ItemNotFound, "media item %d not found", itemID)
	}

	at := asOf.UTC()
	res := &models.Reservation{
		UserID:          userID,
		ItemID:          itemID,
		ReservationDate: at,
		Sequence:        s.seq.Next(),
		ExpiryDate:      at.Add(s.policy.ReservationWindow),
		Status:          models.ReservationActive,
	}
	if err := repos.Reservations.Save(ctx, res); err != nil {
		logFailure(s.log, "reserve failed", err, zap.Uint("user_id", userID), zap.Uint("item_id", itemID))
		return nil, err
	}
	s.log.Info("reservation created",
		zap.Uint("reservation_id", res.ID), zap.Uint("user_id", userID), zap.Uint("item_id", itemID),
		zap.Time("expiry_date", res.ExpiryDate))
	return res, nil
}

// Get returns nil when the reservation does not exist.
func (s *ReservationService) Get(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.store.Repos().Reservations.FindByID(ctx, id)
}

func (s *ReservationService) FindByUser(ctx context.Context, userID uint) ([]models.Reservation, error) {
	return s.store.Repos().Reservations.FindByUserID(ctx, userID)
}

// FindActiveByUser returns the user's reservations that are still waiting.
func (s *ReservationService) FindActiveByUser(ctx context.Context, userID uint) ([]models.Reservation, error) {
	return s.store.Repos().Reservations.FindActiveByUserID(ctx, userID)
}

// FindActiveByItemID returns the waiting queue, head first.
func (s *ReservationService) FindActiveByItemID(ctx context.Context, itemID uint) ([]models.Reservation, error) {
	return s.store.Repos().Reservations.FindActiveByItemID(ctx, itemID)
}

func (s *ReservationService) CountActiveByItemID(ctx context.Context, itemID uint) (int64, error) {
	return s.store.Repos().Reservations.CountActiveByItemID(ctx, itemID)
}

func (s *ReservationService) Cancel(ctx context.Context, id uint) (*models.Reservation, error) {
	var cancelled *models.Reservation
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		res, err := r.Reservations.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return apperrors.Business(apperrors.ReservationNotFound, "reservation %d not found", id)
		}
		if res.Status.Terminal() {
			return apperrors.Business(apperrors.ReservationNotActive, "reservation %d is %s", id, res.Status)
		}
		ok, err := r.Reservations.TransitionStatus(ctx, id, models.ReservationActive, models.ReservationCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Business(apperrors.ReservationNotActive, "reservation %d is no longer active", id)
		}
		res.Status = models.ReservationCancelled
		cancelled = res
		return nil
	})
	if err != nil {
		logFailure(s.log, "cancel reservation failed", err, zap.Uint("reservation_id", id))
		return nil, err
	}
	s.log.Info("reservation cancelled", zap.Uint("reservation_id", id))
	return cancelled, nil
}

// ExpireReservations moves every ACTIVE reservation whose expiry date is
// before asOf to EXPIRED and returns how many it moved. Running it again with
// the same asOf moves nothing.
func (s *ReservationService) ExpireReservations(ctx context.Context, asOf time.Time) (int, error) {
	expired := 0
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		due, err := r.Reservations.FindExpired(ctx, asOf)
		if err != nil {
			return err
		}
		for _, res := range due {
			ok, err := r.Reservations.TransitionStatus(ctx, res.ID, models.ReservationActive, models.ReservationExpired)
			if err != nil {
				return err
			}
			if ok {
				expired++
			}
		}
		return nil
	})
	if err != nil {
		logFailure(s.log, "expire reservations failed", err, zap.Time("as_of", asOf))
		return 0, err
	}
	if expired > 0 {
		s.log.Info("reservations expired", zap.Int("count", expired), zap.Time("as_of", asOf))
	}
	return expired, nil
}

// Promote hands a free copy of the item to the head of its queue. It returns
// nil when the queue is empty or no copy is free.
func (s *ReservationService) Promote(ctx context.Context, itemID uint, asOf time.Time) (*models.Loan, error) {
	var loan *models.Loan
	err := s.store.Transaction(ctx, func(r repository.Repos) error {
		var err error
		loan, err = s.promote(ctx, r, itemID, asOf)
		return err
	})
	if err != nil {
		logFailure(s.log, "promote failed", err, zap.Uint("item_id", itemID))
		return nil, err
	}
	return loan, nil
}

// promote runs inside the caller's transaction and consumes at most one copy.
// Queue entries whose window lapsed before asOf are expired on the way and
// never fulfilled.
func (s *ReservationService) promote(ctx context.Context, r repository.Repos, itemID uint, asOf time.Time) (*models.Loan, error) {
	queue, err := r.Reservations.FindActiveByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, nil
	}

	item, err := r.Items.FindByIDForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.AvailableCopies <= 0 {
		return nil, nil
	}

	for _, head := range queue {
		if head.ExpiryDate.Before(asOf) {
			ok, err := r.Reservations.TransitionStatus(ctx, head.ID, models.ReservationActive, models.ReservationExpired)
			if err != nil {
				return nil, err
			}
			if ok {
				s.log.Info("lapsed reservation skipped",
					zap.Uint("reservation_id", head.ID), zap.Uint("item_id", itemID), zap.Time("expiry_date", head.ExpiryDate))
			}
			continue
		}

		ok, err := r.Reservations.TransitionStatus(ctx, head.ID, models.ReservationActive, models.ReservationFulfilled)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		loan, err := borrow(ctx, r, s.policy, head.UserID, itemID, asOf)
		if err != nil {
			return nil, err
		}
		s.log.Info("reservation promoted",
			zap.Uint("reservation_id", head.ID), zap.Uint("user_id", head.UserID),
			zap.Uint("item_id", itemID), zap.Uint("loan_id", loan.ID))
		return loan, nil
	}
	return nil, nil
}
