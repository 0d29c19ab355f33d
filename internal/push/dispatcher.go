package push

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"teamchat/internal/jobs"
	"teamchat/internal/logging"
	"teamchat/internal/metrics"
)

// SubscriptionStore is the slice of Repository the dispatcher needs.
type SubscriptionStore interface {
	ForUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	RecordSuccess(ctx context.Context, id uuid.UUID, status int, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, status int) error
}

// Roster lists the members of a conversation.
type Roster interface {
	Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

// Directory answers whether a participant still has an account.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// PresenceChecker reports whether a user is actively viewing a conversation.
type PresenceChecker interface {
	Active(ctx context.Context, userID, conversationID uuid.UUID) bool
}

// Debouncer grants at most one dispatch slot per conversation per window.
type Debouncer interface {
	TryAcquire(ctx context.Context, conversationID uuid.UUID, ttl time.Duration) (bool, error)
}

// Scheduler runs a job after a delay.
type Scheduler interface {
	After(delay time.Duration, job jobs.Job)
}

// Dispatcher turns message sends into Web Push notifications. Fast back and
// forth in one conversation produces a single notification: the first send
// in a burst schedules a delayed job, sends inside the window are absorbed,
// and recipient state is read when the job fires, not when it was scheduled.
type Dispatcher struct {
	store     SubscriptionStore
	roster    Roster
	directory Directory
	presence  PresenceChecker
	debounce  Debouncer
	scheduler Scheduler
	sender    Sender
	delay     time.Duration

	now func() time.Time
}

func NewDispatcher(store SubscriptionStore, roster Roster, directory Directory,
	presence PresenceChecker, debounce Debouncer, scheduler Scheduler,
	sender Sender, delay time.Duration) *Dispatcher {
	return &Dispatcher{
		store:     store,
		roster:    roster,
		directory: directory,
		presence:  presence,
		debounce:  debounce,
		scheduler: scheduler,
		sender:    sender,
		delay:     delay,
		now:       time.Now,
	}
}

// Schedule queues a notification for a just-sent message. The payload is
// snapshotted here; who gets it is decided when the job runs.
func (d *Dispatcher) Schedule(ctx context.Context, conversationID, senderID uuid.UUID, senderName, body string) {
	acquired, err := d.debounce.TryAcquire(ctx, conversationID, d.delay)
	if err != nil {
		logging.Warn().Err(err).Msg("push debounce check failed")
		return
	}
	if !acquired {
		metrics.PushJobsSuppressed.Inc()
		return
	}
	d.scheduler.After(d.delay, func(jobCtx context.Context) {
		stats, err := d.Dispatch(jobCtx, conversationID, senderID, senderName, body)
		if err != nil {
			logging.Error().Err(err).
				Str("conversation_id", conversationID.String()).
				Msg("push dispatch failed")
			return
		}
		logging.Debug().
			Str("conversation_id", conversationID.String()).
			Int("recipients", stats.Recipients).
			Int("succeeded", stats.Succeeded).
			Int("gone", stats.Gone).
			Int("failed", stats.Failed).
			Int("suppressed", stats.Suppressed).
			Msg("push dispatched")
	})
}

// Dispatch fans one notification out to every eligible device. Eligible
// means a conversation member other than the sender who still has an
// account and is not actively viewing the conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID, senderID uuid.UUID, senderName, body string) (*DispatchStats, error) {
	members, err := d.roster.Participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(notificationPayload{
		Title:          senderName,
		Body:           body,
		Tag:            notificationTag,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}

	stats := &DispatchStats{}
	for _, userID := range members {
		if userID == senderID {
			continue
		}
		ok, err := d.directory.Exists(ctx, userID)
		if err != nil {
			return stats, err
		}
		if !ok {
			continue
		}
		if d.presence.Active(ctx, userID, conversationID) {
			stats.Suppressed++
			continue
		}
		stats.Recipients++
		if err := d.fanOut(ctx, userID, payload, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// fanOut delivers to every registered device of one recipient, classifying
// each outcome independently. One dead device never blocks the others.
func (d *Dispatcher) fanOut(ctx context.Context, userID uuid.UUID, payload []byte, stats *DispatchStats) error {
	subs, err := d.store.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		stats.Attempted++
		status, err := d.sender.Send(ctx, sub, payload)
		switch {
		case err != nil:
			stats.Failed++
			metrics.PushSends.WithLabelValues("error").Inc()
			logging.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("push send failed")
			if rerr := d.store.RecordFailure(ctx, sub.ID, 0); rerr != nil {
				logging.Warn().Err(rerr).Msg("record push failure failed")
			}
		case delivered(status):
			stats.Succeeded++
			metrics.PushSends.WithLabelValues("success").Inc()
			if rerr := d.store.RecordSuccess(ctx, sub.ID, status, d.now()); rerr != nil {
				logging.Warn().Err(rerr).Msg("record push success failed")
			}
		case gone(status):
			stats.Gone++
			metrics.PushSends.WithLabelValues("gone").Inc()
			if rerr := d.store.DeleteByID(ctx, sub.ID); rerr != nil {
				logging.Warn().Err(rerr).Msg("prune dead subscription failed")
			}
		default:
			stats.Failed++
			metrics.PushSends.WithLabelValues("error").Inc()
			if rerr := d.store.RecordFailure(ctx, sub.ID, status); rerr != nil {
				logging.Warn().Err(rerr).Msg("record push failure failed")
			}
		}
	}
	return nil
}
