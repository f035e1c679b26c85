package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const runTimeout = time.Minute

// DigestMailer delivers the pending block request summary
type DigestMailer interface {
	PendingBlockDigest(ctx context.Context, pending []email.BlockRequest) error
}

// Digest periodically mails operations the cards waiting to be blocked.
// It only reads; card state is left to administrators.
type Digest struct {
	cron     *cron.Cron
	store    repository.Store
	mailer   DigestMailer
	logger   *logrus.Logger
	schedule string
}

// NewDigest creates a digest job for the given cron schedule
func NewDigest(store repository.Store, mailer DigestMailer, logger *logrus.Logger, schedule string) *Digest {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(logger))))
	return &Digest{cron: c, store: store, mailer: mailer, logger: logger, schedule: schedule}
}

// Start registers the job and starts the scheduler
func (d *Digest) Start() error {
	if _, err := d.cron.AddFunc(d.schedule, d.run); err != nil {
		return fmt.Errorf("failed to schedule block request digest: %w", err)
	}
	d.cron.Start()
	d.logger.WithField("schedule", d.schedule).Info("Scheduled block request digest")
	return nil
}

// Stop stops the scheduler; the returned context is done once a running job finishes
func (d *Digest) Stop() context.Context {
	return d.cron.Stop()
}

func (d *Digest) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := d.RunOnce(ctx); err != nil {
		d.logger.WithError(err).Error("Block request digest failed")
	}
}

// RunOnce sends one digest. Nothing is sent when no card is waiting.
func (d *Digest) RunOnce(ctx context.Context) error {
	cards, err := d.store.Cards().FindByStatus(ctx, models.CardRequestedBlock)
	if err != nil {
		return fmt.Errorf("failed to list pending cards: %w", err)
	}
	if len(cards) == 0 {
		d.logger.Debug("No pending block requests")
		return nil
	}

	owners := make(map[int64]string)
	pending := make([]email.BlockRequest, 0, len(cards))
	for _, c := range cards {
		name, ok := owners[c.OwnerID]
		if !ok {
			u, err := d.store.Users().FindByID(ctx, c.OwnerID)
			if err != nil {
				d.logger.WithError(err).WithField("user_id", c.OwnerID).Warn("Failed to resolve card owner")
				name = fmt.Sprintf("user #%d", c.OwnerID)
			} else {
				name = u.Username
			}
			owners[c.OwnerID] = name
		}
		pending = append(pending, email.BlockRequest{
			CardID:       c.ID,
			MaskedNumber: service.MaskNumber(c.Number),
			Username:     name,
			RequestedAt:  c.UpdatedAt,
		})
	}

	if err := d.mailer.PendingBlockDigest(ctx, pending); err != nil {
		return err
	}
	d.logger.WithField("pending", len(pending)).Info("Block request digest sent")
	return nil
}
