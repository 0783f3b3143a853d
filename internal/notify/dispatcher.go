package notify

import (
	"context"

	"github.com/diamonddulceria/storefront/pkg/models"
)

// Dispatcher hands a claimed notification to whatever delivers it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

type MailDispatcher struct {
	mailer Mailer
}

func NewMailDispatcher(mailer Mailer) *MailDispatcher {
	return &MailDispatcher{mailer: mailer}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	return d.mailer.Send(ctx, Message{To: n.Recipient, Subject: n.Subject, Body: n.Body})
}
