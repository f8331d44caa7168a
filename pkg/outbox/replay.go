package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
	pkgerrors "github.com/jasskhinda/facility-billing/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Replayer moves a dead-lettered event back into the publish queue. The
// DLQ row is removed and the outbox row gets a fresh attempt budget in one
// transaction, so the event is never both parked and queued.
type Replayer struct {
	db     txRunner
	events *Repository
}

func NewReplayer(db txRunner, events *Repository) *Replayer {
	return &Replayer{db: db, events: events}
}

// Replay requeues eventID. Only exhausted retries are replayable unless
// force is set; decode failures need a fix first and would park again.
func (r *Replayer) Replay(ctx context.Context, eventID uuid.UUID, force bool) (*models.OutboxDLQ, error) {
	var parked models.OutboxDLQ
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ?", eventID).
			First(&parked).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "event is not in the dead letter queue")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load dlq entry")
		}
		if !parked.ErrorReason.Replayable() && !force {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s events need a fix before replay", parked.ErrorReason)).
				WithDetails(map[string]any{"reason": parked.ErrorReason, "force": "set force=true to replay anyway"})
		}

		if err := r.events.RequeueTx(tx, eventID); err != nil {
			return err
		}
		if err := tx.Delete(&models.OutboxDLQ{}, "id = ?", parked.ID).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "remove dlq entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &parked, nil
}
