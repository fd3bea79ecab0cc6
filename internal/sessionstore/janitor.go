package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// PurgeNotification announces a janitor sweep on the message bus so
// downstream consumers can invalidate any state they hold per openid.
type PurgeNotification struct {
	SweepTime time.Time `json:"sweep_time"`
	Purged    int       `json:"purged"`
	OpenIDs   []string  `json:"open_ids,omitempty"`
	DryRun    bool      `json:"dry_run"`
}

// Janitor periodically deletes sessions idle past the inactivity
// timeout. Redis copies expire on their own via TTL; the janitor only
// has to sweep the durable rows.
type Janitor struct {
	repo   *Repository
	queue  *nats.Conn
	config JanitorConfig
}

// NewJanitor creates a new session janitor. queue may be nil when no
// notifications are wanted.
func NewJanitor(repo *Repository, queue *nats.Conn, config JanitorConfig) *Janitor {
	if config.InactivityTimeout == 0 {
		config.InactivityTimeout = 72 * time.Hour
	}
	if config.MinimumAge == 0 {
		config.MinimumAge = time.Hour
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = 10 * time.Minute
	}
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}

	return &Janitor{
		repo:   repo,
		queue:  queue,
		config: config,
	}
}

// Start runs the sweep loop until the context is cancelled
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.SweepInterval)
	defer ticker.Stop()

	telemetry.WithFields(logrus.Fields{
		"interval": j.config.SweepInterval.String(),
		"dry_run":  j.config.DryRun,
	}).Info("session janitor started")

	// Run immediately on start
	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			telemetry.L().Info("session janitor stopped")
			return
		}
	}
}

// sweep executes one cleanup cycle
func (j *Janitor) sweep(ctx context.Context) {
	notification := PurgeNotification{
		SweepTime: time.Now().UTC(),
		DryRun:    j.config.DryRun,
	}

	if j.config.DryRun {
		openIDs, err := j.repo.GetInactive(ctx, j.config.InactivityTimeout, j.config.MinimumAge, j.config.BatchSize)
		if err != nil {
			telemetry.WithError(err).Error("janitor sweep failed")
			return
		}
		notification.Purged = len(openIDs)
		notification.OpenIDs = openIDs
		telemetry.WithFields(logrus.Fields{
			"would_purge": len(openIDs),
		}).Info("janitor dry run complete")
	} else {
		total := 0
		for {
			purged, err := j.repo.DeleteInactive(ctx, j.config.InactivityTimeout, j.config.MinimumAge, j.config.BatchSize)
			if err != nil {
				telemetry.WithError(err).Error("janitor sweep failed")
				break
			}
			total += purged
			if purged < j.config.BatchSize {
				break
			}
		}
		notification.Purged = total
		telemetry.RecordSessionsPurged(total)
		if total > 0 {
			telemetry.WithFields(logrus.Fields{
				"purged": total,
			}).Info("janitor sweep complete")
		}
	}

	if err := j.notify(notification); err != nil {
		telemetry.WithError(err).Warn("failed to publish purge notification")
	}
}

// notify publishes a sweep notification to the message queue
func (j *Janitor) notify(notification PurgeNotification) error {
	if j.queue == nil || notification.Purged == 0 {
		return nil
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: "weapp.session.purged",
		Data:    data,
		Header: nats.Header{
			"sweep-time": []string{notification.SweepTime.Format(time.RFC3339)},
		},
	}

	return j.queue.PublishMsg(msg)
}
