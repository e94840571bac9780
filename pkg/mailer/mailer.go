package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
)

// Mailer delivers transactional mail over SMTP.
type Mailer struct {
	cfg config.SMTPConfig
}

// New constructs a Mailer from SMTP configuration.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Configured reports whether the transport has credentials to deliver mail.
func (m *Mailer) Configured() bool {
	return m.cfg.Email != "" && m.cfg.Password != ""
}

// SendOTP delivers the activation code to the given address.
func (m *Mailer) SendOTP(to, code string) error {
	if !m.Configured() {
		return fmt.Errorf("smtp credentials are not configured")
	}

	from := m.cfg.From
	if from == "" {
		from = m.cfg.Email
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Verification code - Telegram Archive")
	msg.SetBody("text/html", otpBody(code))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Email, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}
	return nil
}

func otpBody(code string) string {
	return fmt.Sprintf(`
<html>
  <body style="font-family: Arial, sans-serif; background-color: #f8fafc; padding: 20px;">
    <div style="max-width: 600px; margin: 0 auto; background: white; border-radius: 12px; padding: 30px;">
      <h2 style="color: #2563eb; text-align: center;">Verification code</h2>
      <p style="font-size: 16px; color: #1e293b; text-align: center;">
        An activation code was requested for your archive account.
      </p>
      <div style="background: #eff6ff; border-radius: 8px; padding: 20px; margin: 20px 0; text-align: center;">
        <h1 style="color: #2563eb; font-size: 36px; letter-spacing: 8px; margin: 0;">%s</h1>
      </div>
      <p style="font-size: 14px; color: #64748b; text-align: center;">
        The code is valid for 10 minutes. If you did not request it, ignore this message.
      </p>
    </div>
  </body>
</html>`, code)
}
