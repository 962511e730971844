package destinations

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the mail adapter.
const (
	// SettingMailHost is the SMTP server host name.
	SettingMailHost = "smtp_host"

	// SettingMailPort is the SMTP port. Empty means 587.
	SettingMailPort = "smtp_port"

	// SettingMailUser is the SMTP login. The password comes from the
	// settings store.
	SettingMailUser = "smtp_user"

	// SettingMailFrom is the sender address.
	SettingMailFrom = "from"

	// SettingMailTo is the recipient address list, comma separated.
	SettingMailTo = "to"
)

// MailAdapter forwards documents as email attachments.
type MailAdapter struct{}

// NewMailAdapter creates a new mail adapter.
func NewMailAdapter() *MailAdapter {
	return &MailAdapter{}
}

// Provider returns the provider type this adapter serves.
func (a *MailAdapter) Provider() domain.ProviderType {
	return domain.ProviderMail
}

// Deliver sends the document as an attachment. Mail has no remote
// object; the reference records the recipients.
func (a *MailAdapter) Deliver(ctx context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	client, err := a.client(req.Target)
	if err != nil {
		return nil, err
	}

	dest := req.Target.Destination
	recipients := splitAddresses(dest.Setting(SettingMailTo))

	msg := mail.NewMsg()
	if err := msg.From(dest.Setting(SettingMailFrom)); err != nil {
		return nil, domain.Classified(domain.ErrClassValidation, fmt.Errorf("sender address: %w", err))
	}
	if err := msg.To(recipients...); err != nil {
		return nil, domain.Classified(domain.ErrClassValidation, fmt.Errorf("recipient address: %w", err))
	}
	msg.Subject(mailSubject(req.Document))
	msg.SetBodyString(mail.TypeTextPlain, mailBody(req.Document))
	if err := msg.AttachReader(req.Filename, req.Content); err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("attaching document: %w", err))
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return nil, classifyMailErr(fmt.Errorf("sending mail: %w", err))
	}
	return &driven.DeliveryResult{RemoteRef: "mailto:" + strings.Join(recipients, ",")}, nil
}

// TestConnection verifies the SMTP server accepts the credentials.
func (a *MailAdapter) TestConnection(ctx context.Context, target driven.Target) error {
	client, err := a.client(target)
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return classifyMailErr(fmt.Errorf("dialing smtp server: %w", err))
	}
	return client.Close()
}

func (a *MailAdapter) client(target driven.Target) (*mail.Client, error) {
	dest := target.Destination
	host := dest.Setting(SettingMailHost)
	if host == "" {
		return nil, domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no smtp host configured", dest.Name))
	}
	if dest.Setting(SettingMailTo) == "" {
		return nil, domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no recipients configured", dest.Name))
	}

	port := 587
	if p := dest.Setting(SettingMailPort); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return nil, domain.Classified(domain.ErrClassValidation,
				fmt.Errorf("invalid smtp port %q", p))
		}
		port = parsed
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if user := dest.Setting(SettingMailUser); user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(target.Secrets[domain.KeySMTPPassword]),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("creating smtp client: %w", err))
	}
	return client, nil
}

// classifyMailErr maps SMTP failures onto the error taxonomy. 4xx reply
// codes are transient by SMTP convention, 535 is an auth failure.
func classifyMailErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "535"), strings.Contains(msg, "authentication failed"):
		return domain.Classified(domain.ErrClassAuthExpired, err)
	case strings.Contains(msg, "421"), strings.Contains(msg, "450"), strings.Contains(msg, "451"), strings.Contains(msg, "452"):
		return domain.Classified(domain.ErrClassTransient, err)
	case strings.Contains(msg, "550"), strings.Contains(msg, "552"), strings.Contains(msg, "553"):
		return domain.Classified(domain.ErrClassPermanent, err)
	default:
		return domain.Classified(classifyNetErr(err), err)
	}
}

// mailSubject builds the forwarded mail subject from extracted
// metadata, falling back to the delivered name.
func mailSubject(doc domain.Document) string {
	if doc.Metadata != nil && doc.Metadata.Title != "" {
		return doc.Metadata.Title
	}
	return doc.DeliveredName()
}

func mailBody(doc domain.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", doc.OriginalName)
	if doc.Metadata != nil {
		if doc.Metadata.Classification != "" {
			fmt.Fprintf(&b, "Classification: %s\n", doc.Metadata.Classification)
		}
		if !doc.Metadata.Date.IsZero() {
			fmt.Fprintf(&b, "Date: %s\n", doc.Metadata.Date.Format("2006-01-02"))
		}
	}
	fmt.Fprintf(&b, "Pages: %d\n", doc.PageCount)
	return b.String()
}

func splitAddresses(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
