package notify

import (
	"context"
	"time"
)

// DefaultSendTimeout bounds a single email delivery.
const DefaultSendTimeout = 15 * time.Second

// StatusChange describes a committed request transition to announce to its owner.
type StatusChange struct {
	RequestID   string    `json:"requestId"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Remark      string    `json:"remark,omitempty"`
	OwnerName   string    `json:"ownerName"`
	OwnerEmail  string    `json:"ownerEmail"`
	CreatedAt   time.Time `json:"createdAt"`
	ActionAt    time.Time `json:"actionAt"`
}

// Notifier sends the portal's user-facing emails.
type Notifier interface {
	SendVerificationCode(ctx context.Context, to, name, code string, expiresIn time.Duration) error
	SendPasswordReset(ctx context.Context, to, name, resetURL string, expiresIn time.Duration) error
	SendStatusChange(ctx context.Context, change StatusChange) error
}

// MailNotifier renders templates and hands them to a Mailer.
type MailNotifier struct {
	mailer  Mailer
	cc      []string
	timeout time.Duration
}

// Ensure MailNotifier implements Notifier
var _ Notifier = (*MailNotifier)(nil)

// NewMailNotifier creates a notifier. cc is copied on status change emails.
func NewMailNotifier(mailer Mailer, cc []string) *MailNotifier {
	return &MailNotifier{mailer: mailer, cc: cc, timeout: DefaultSendTimeout}
}

func (n *MailNotifier) send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.mailer.Send(ctx, msg)
}

func (n *MailNotifier) SendVerificationCode(ctx context.Context, to, name, code string, expiresIn time.Duration) error {
	msg, err := VerificationEmail(to, name, code, expiresIn)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *MailNotifier) SendPasswordReset(ctx context.Context, to, name, resetURL string, expiresIn time.Duration) error {
	msg, err := PasswordResetEmail(to, name, resetURL, expiresIn)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *MailNotifier) SendStatusChange(ctx context.Context, change StatusChange) error {
	msg, err := StatusChangeEmail(change, n.cc)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}
