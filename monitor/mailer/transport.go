package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/google/uuid"

	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/monitor/config"
)

// ImplicitTLSPort is the submissions port, where TLS starts before the
// SMTP greeting.
const ImplicitTLSPort = 465

const DefaultSendTimeout = 2 * time.Minute

// Transport makes a single delivery attempt. Errors that another attempt
// cannot fix are returned as *models.PermanentDeliveryError.
type Transport interface {
	Send(ctx context.Context, msg models.Message, smtpConfig config.SMTPConfig) error
}

type SMTPTransport struct {
	logger   lager.Logger
	clock    clock.Clock
	timeout  time.Duration
	helo     string
	dialer   *net.Dialer
	tlsBase  *tls.Config
	newMsgID func() string
}

var _ Transport = &SMTPTransport{}

func NewSMTPTransport(logger lager.Logger, clock clock.Clock) *SMTPTransport {
	helo, err := os.Hostname()
	if err != nil || helo == "" {
		helo = "localhost"
	}
	return &SMTPTransport{
		logger:   logger.Session("smtp-transport"),
		clock:    clock,
		timeout:  DefaultSendTimeout,
		helo:     helo,
		dialer:   &net.Dialer{Timeout: 30 * time.Second},
		tlsBase:  &tls.Config{MinVersion: tls.VersionTLS12},
		newMsgID: uuid.NewString,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg models.Message, smtpConfig config.SMTPConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := t.logger.Session("send", lager.Data{"server": smtpConfig.Address(), "to": msg.To})

	conn, err := t.dial(ctx, smtpConfig)
	if err != nil {
		logger.Debug("failed-to-connect", lager.Data{"error": err.Error()})
		return fmt.Errorf("failed to connect to smtp server %s: %w", smtpConfig.Address(), err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	deadline := t.clock.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, smtpConfig.Server)
	if err != nil {
		_ = conn.Close()
		return classify("greeting", err)
	}
	defer func() { _ = client.Close() }()

	if err := t.session(client, msg, smtpConfig); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	logger.Debug("accepted")
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context, smtpConfig config.SMTPConfig) (net.Conn, error) {
	if smtpConfig.Port == ImplicitTLSPort {
		dialer := &tls.Dialer{NetDialer: t.dialer, Config: t.tlsConfig(smtpConfig.Server)}
		return dialer.DialContext(ctx, "tcp", smtpConfig.Address())
	}
	return t.dialer.DialContext(ctx, "tcp", smtpConfig.Address())
}

func (t *SMTPTransport) tlsConfig(server string) *tls.Config {
	c := t.tlsBase.Clone()
	c.ServerName = server
	return c
}

func (t *SMTPTransport) session(client *smtp.Client, msg models.Message, smtpConfig config.SMTPConfig) error {
	if err := client.Hello(t.helo); err != nil {
		return classify("hello", err)
	}

	_, encrypted := client.TLSConnectionState()
	if !encrypted && smtpConfig.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return models.NewPermanentDeliveryError("smtp server does not offer STARTTLS", nil)
		}
		if err := client.StartTLS(t.tlsConfig(smtpConfig.Server)); err != nil {
			return classify("starttls", err)
		}
		encrypted = true
	}

	if !encrypted && !isLoopback(smtpConfig.Server) {
		return models.NewPermanentDeliveryError("refusing to send smtp credentials over an unencrypted connection", nil)
	}
	if err := client.Auth(smtp.PlainAuth("", smtpConfig.Username, smtpConfig.Password, smtpConfig.Server)); err != nil {
		return classify("auth", err)
	}

	if err := client.Mail(msg.From); err != nil {
		return classify("mail", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return classify("rcpt", err)
	}
	w, err := client.Data()
	if err != nil {
		return classify("data", err)
	}
	if _, err := w.Write(BuildMessage(msg, t.clock.Now(), t.messageID())); err != nil {
		return classify("data", err)
	}
	if err := w.Close(); err != nil {
		return classify("data", err)
	}
	// The message is queued once DATA is accepted; a failed QUIT does not
	// warrant a resend.
	_ = client.Quit()
	return nil
}

func (t *SMTPTransport) messageID() string {
	return fmt.Sprintf("<%s@%s>", t.newMsgID(), t.helo)
}

var permanentReasons = map[string]string{
	"auth": "smtp authentication rejected, check smtp_username and smtp_password",
	"mail": "sender refused",
	"rcpt": "recipient refused",
	"data": "message rejected by the smtp server",
}

// classify marks 5xx replies to credential, envelope and content commands as
// permanent. Connection problems and 4xx replies stay transient.
func classify(stage string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		if reason, ok := permanentReasons[stage]; ok {
			return models.NewPermanentDeliveryError(reason, err)
		}
	}
	return fmt.Errorf("smtp %s failed: %w", stage, err)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
