package notification

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

const perPage = 20

var ErrNotFound = core.NewNotFoundError("notification not found")

type (
	Repository interface {
		// CreateNotifications inserts all rows at once.
		CreateNotifications(ctx context.Context, ns []Notification, exec ...core.DBExecutor) ([]Notification, error)
		GetNotification(ctx context.Context, id int, exec ...core.DBExecutor) (Notification, error)
		// QueryNotifications returns a page of the user's notifications, newest first, and their total count.
		QueryNotifications(ctx context.Context, userID int, page core.Pagination, exec ...core.DBExecutor) ([]Notification, int, error)
		SetSeen(ctx context.Context, id int, exec ...core.DBExecutor) error
		CountUnseen(ctx context.Context, userID int, exec ...core.DBExecutor) (int, error)
		// ClaimDispatch records key; it returns false if key was already claimed.
		ClaimDispatch(ctx context.Context, key, runID string, exec ...core.DBExecutor) (bool, error)
		QueryAttendanceOnDate(ctx context.Context, day core.Date, exec ...core.DBExecutor) ([]AttendanceEntry, error)
	}

	// Dispatcher fans an Event out to its recipients.
	Dispatcher interface {
		Dispatch(ctx context.Context, senderID int, ev Event, exec ...core.DBExecutor) ([]Notification, error)
	}

	Service interface {
		Dispatcher
		List(ctx context.Context, actor user.User, page int) (core.Page, error)
		MarkSeen(ctx context.Context, actor user.User, id int) (Notification, error)
		UnseenCount(ctx context.Context, actor user.User) (int, error)
		SendAttendance(ctx context.Context, day core.Date) (JobSummary, error)
	}

	service struct {
		repo    Repository
		users   user.Service
		mailSvc core.EmailService
		tx      core.TxRunner
		metrics core.Metrics
		logger  core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	users user.Service,
	mailSvc core.EmailService,
	tx core.TxRunner,
	metrics core.Metrics,
	logger core.Logger,
) Service {
	return &service{
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		tx:      tx,
		metrics: metrics,
		logger:  logger,
	}
}

// recipients resolves the audience into distinct user ids: parents first, then direct recipients.
func (svc *service) recipients(ctx context.Context, aud Audience) ([]int, error) {
	var parents []int
	if len(aud.ParentsOf) > 0 {
		var err error
		if parents, err = svc.users.ParentIDs(ctx, aud.ParentsOf...); err != nil {
			return nil, errors.Wrap(err, "querying parents")
		}
	}

	seen := make(map[int]bool)
	ids := make([]int, 0, len(parents)+len(aud.UserIDs))
	for _, group := range [][]int{parents, aud.UserIDs} {
		for _, id := range group {
			if id > 0 && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Dispatch stores one notification per recipient of ev. The email mirror and the metrics wait for
// the commit of the transaction in exec, if any.
func (svc *service) Dispatch(ctx context.Context, senderID int, ev Event, exec ...core.DBExecutor) ([]Notification, error) {
	ids, err := svc.recipients(ctx, ev.Audience())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := core.NowFunc().UTC()
	ns := make([]Notification, 0, len(ids))
	for _, id := range ids {
		ns = append(ns, Notification{
			Kind:      ev.Kind(),
			UserID:    id,
			SenderID:  null.NewInt(senderID, senderID > 0),
			Title:     ev.Title(),
			Content:   orNoContent(ev.Content()),
			Note:      null.NewString(ev.Note(), ev.Note() != ""),
			RelatedID: null.NewInt(ev.RelatedID(), ev.RelatedID() > 0),
			CreatedAt: now,
		})
	}

	if ns, err = svc.repo.CreateNotifications(ctx, ns, exec...); err != nil {
		return nil, errors.Wrap(err, "inserting notifications")
	}
	core.AfterCommit(func() {
		svc.metrics.NotificationsDispatched(ev.Kind().String(), len(ns))
		svc.sendEmails(ctx, ids, ev)
	}, exec...)
	return ns, nil
}

// sendEmails is best effort: lookup failures are logged, never returned.
func (svc *service) sendEmails(ctx context.Context, ids []int, ev Event) {
	users, err := svc.users.QueryByID(ctx, ids...)
	if err != nil {
		svc.logger.Error("notification emails: querying users", err)
		return
	}

	msgs := make([]*core.EmailMessage, 0, len(users))
	for _, id := range ids {
		usr, ok := users[id]
		if !ok || usr.Email == "" || !usr.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      ev.Title(),
			TemplateName: "notification",
			TemplateData: map[string]interface{}{
				"Title":   ev.Title(),
				"Content": orNoContent(ev.Content()),
				"Note":    ev.Note(),
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func (svc *service) List(ctx context.Context, actor user.User, page int) (core.Page, error) {
	p := core.NewPagination(page, perPage)
	ns, total, err := svc.repo.QueryNotifications(ctx, actor.ID, p)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying notifications")
	}
	if ns == nil {
		ns = []Notification{}
	}
	return core.NewPage(p, total, ns), nil
}

func (svc *service) MarkSeen(ctx context.Context, actor user.User, id int) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != actor.ID {
		return Notification{}, core.ErrPermissionDenied
	}
	if !n.Seen {
		if err = svc.repo.SetSeen(ctx, id); err != nil {
			return Notification{}, errors.Wrap(err, "marking notification seen")
		}
		n.Seen = true
	}
	return n, nil
}

func (svc *service) UnseenCount(ctx context.Context, actor user.User) (int, error) {
	return svc.repo.CountUnseen(ctx, actor.ID)
}
