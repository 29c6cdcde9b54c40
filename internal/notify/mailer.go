package notify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"giftclub/internal/taskqueue"
	"giftclub/internal/types"
)

// MailerConfig holds sender identity and link settings.
type MailerConfig struct {
	FromAddress     string
	FromName        string
	ReplyToAddress  string
	ReplyToName     string
	SubjectPrefix   string
	SiteURL         string
	MessageIDDomain string
}

// Mailer delivers JobActionEmail jobs.
type Mailer struct {
	users  UserReader
	sender EmailSender
	cfg    MailerConfig
	logger types.Logger
}

// NewMailer creates a Mailer.
func NewMailer(users UserReader, sender EmailSender, cfg MailerConfig, logger types.Logger) *Mailer {
	cfg.SiteURL = strings.TrimSuffix(cfg.SiteURL, "/")
	return &Mailer{users: users, sender: sender, cfg: cfg, logger: logger}
}

// Handle implements taskqueue.Handler.
func (m *Mailer) Handle(ctx context.Context, job *types.Job) error {
	var payload types.EmailPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}

	user, err := m.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if !user.HasEmail() {
		return taskqueue.Rejectf("email address of user %q is not known", user.Login)
	}
	if !user.EmailAllowed {
		return taskqueue.Rejectf("user %q has prohibited sending them emails", user.Login)
	}

	msg := m.Render(job.ID, user, payload)
	providerID, err := m.sender.Send(ctx, msg)
	if err != nil {
		if types.HasCode(err, types.ErrCodeEmailBlocked) {
			m.logger.Warn("recipient blocked by provider",
				"job_id", job.ID,
				"dest", RedactEmail(*user.Email),
			)
			return taskqueue.Reject(err)
		}
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("email sent",
		"job_id", job.ID,
		"dest", RedactEmail(*user.Email),
		"provider_message_id", providerID,
	)
	return nil
}

// Render builds the outgoing message for user. The Message-ID is derived
// from the job id, so a retried job reuses it.
func (m *Mailer) Render(jobID int64, user *types.User, payload types.EmailPayload) types.EmailMessage {
	unsubscribe := m.UnsubscribeURL(user)
	ref := strconv.FormatInt(jobID, 10)
	msgID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(m.cfg.SiteURL+"/jobs/"+ref))

	return types.EmailMessage{
		To:       *user.Email,
		ToName:   user.Login,
		From:     m.cfg.FromAddress,
		FromName: m.cfg.FromName,
		Subject:  m.cfg.SubjectPrefix + payload.Subject,
		BodyText: payload.Body + fmt.Sprintf(emailFooter, *user.Email, unsubscribe, m.cfg.ReplyToAddress),
		Headers: map[string]string{
			"Message-ID":       fmt.Sprintf("<%s@%s>", msgID, m.cfg.MessageIDDomain),
			"Reply-To":         fmt.Sprintf("%s <%s>", m.cfg.ReplyToName, m.cfg.ReplyToAddress),
			"List-Unsubscribe": "<" + unsubscribe + ">",
		},
		ReferenceID: ref,
	}
}

// UnsubscribeURL returns the one-click opt-out link for user.
func (m *Mailer) UnsubscribeURL(user *types.User) string {
	q := url.Values{}
	q.Set("uid", strconv.FormatInt(user.HabrID, 10))
	q.Set("token", user.EmailToken.Unmask())
	return m.cfg.SiteURL + "/backend/unsubscribe?" + q.Encode()
}

const emailFooter = "\n\n---\n\n" +
	"Мы получили этот почтовый адрес (%s) через API Хабра, т. к. вы входили на сайт клуба.\n\n" +
	"Если вы не хотите получать уведомления от Хабра-АДМ, просто перейдите по ссылке: %s\n\n" +
	"Письмо может содержать конфиденциальную информацию. " +
	"Если вы получили его по ошибке, пожалуйста, сообщите об этом %s и удалите это письмо. Спасибо! :-)"
