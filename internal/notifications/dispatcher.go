package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/blastsocial/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// event is one queued notification.
type event struct {
	userID  uint
	kind    models.NotificationType
	message string
	otherID *uint
	postID  *uint
}

// Dispatcher delivers notifications best-effort off the request path.
// Callers enqueue and return immediately; a worker persists the row and
// hands it to whatever push transport is configured. Failures are logged
// and dropped, never surfaced to the originating action.
type Dispatcher struct {
	db     *gorm.DB
	log    *zap.Logger
	events chan event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with explicit handles.
func NewDispatcher(db *gorm.DB, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		db:     db,
		log:    log,
		events: make(chan event, 256),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
	d.log.Info("Notification dispatcher started")
}

// Stop drains in-flight events and shuts the worker down.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	d.log.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			// Drain whatever is already queued.
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

// deliver persists the notification row. Push delivery mechanics live
// outside this repo; the log line stands in for the transport call.
func (d *Dispatcher) deliver(ev event) {
	row := models.Notification{
		UserID:  ev.userID,
		Type:    ev.kind,
		Message: ev.message,
		OtherID: ev.otherID,
		PostID:  ev.postID,
	}
	if err := d.db.Create(&row).Error; err != nil {
		d.log.Error("Failed to persist notification",
			zap.Uint("user_id", ev.userID),
			zap.Int("type", int(ev.kind)),
			zap.Error(err))
		return
	}
	d.log.Info("Notification dispatched",
		zap.Uint("user_id", ev.userID),
		zap.Int("type", int(ev.kind)),
		zap.String("message", ev.message))
}

// enqueue never blocks the caller; a full queue drops the event with a log.
func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.events <- ev:
	default:
		d.log.Warn("Notification queue full, dropping event",
			zap.Uint("user_id", ev.userID),
			zap.Int("type", int(ev.kind)))
	}
}

// NewFollower notifies followeeID that followerUsername followed them,
// honoring their notify_new_followers setting.
func (d *Dispatcher) NewFollower(followeeID, followerID uint, followerUsername string) {
	if d.notifyLevel(followeeID, "notify_new_followers") == models.NotifyOff {
		return
	}
	d.enqueue(event{
		userID:  followeeID,
		kind:    models.NotificationNewFollower,
		message: fmt.Sprintf("%s started following you", followerUsername),
		otherID: &followerID,
	})
}

// VoteMilestone notifies a post owner their post crossed a vote milestone.
func (d *Dispatcher) VoteMilestone(ownerID, postID uint, milestone int) {
	if !d.votesEnabled(ownerID) {
		return
	}
	d.enqueue(event{
		userID:  ownerID,
		kind:    models.NotificationVoteMilestone,
		message: fmt.Sprintf("Your blast reached %d votes", milestone),
		postID:  &postID,
	})
}

// Mention notifies mentionedID they were @mentioned in a post.
func (d *Dispatcher) Mention(mentionedID, authorID uint, postID uint, authorUsername string) {
	d.enqueue(event{
		userID:  mentionedID,
		kind:    models.NotificationMention,
		message: fmt.Sprintf("%s mentioned you", authorUsername),
		otherID: &authorID,
		postID:  &postID,
	})
}

func (d *Dispatcher) notifyLevel(userID uint, column string) int {
	var level int
	err := d.db.Model(&models.UserSettings{}).
		Where("user_id = ?", userID).
		Pluck(column, &level).Error
	if err != nil {
		return models.NotifyPeopleIFollow
	}
	return level
}

func (d *Dispatcher) votesEnabled(userID uint) bool {
	var enabled bool
	err := d.db.Model(&models.UserSettings{}).
		Where("user_id = ?", userID).
		Pluck("notify_votes", &enabled).Error
	if err != nil {
		return true
	}
	return enabled
}
