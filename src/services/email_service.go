package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/logger"
)

type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendPasswordResetEmail(toEmail, username, token string) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{
				VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
				PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
			}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:                       mg,
			senderEmail:              config.Cfg.SenderEmail,
			senderName:               config.Cfg.SenderName,
			verificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			passwordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{
				VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
				PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
			}
		}
		return &SMTPEmailService{
			SMTPServer:               config.Cfg.SMTPServer,
			SMTPPort:                 config.Cfg.SMTPPort,
			SMTPUser:                 config.Cfg.SMTPUser,
			SMTPPassword:             config.Cfg.SMTPPassword,
			SenderEmail:              config.Cfg.SenderEmail,
			VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{
			VerificationEmailBaseURL: config.Cfg.VerificationEmailBaseURL,
			PasswordResetBaseURL:     config.Cfg.PasswordResetBaseURL,
		}
	}
}

type SMTPEmailService struct {
	SMTPServer               string
	SMTPPort                 int
	SMTPUser                 string
	SMTPPassword             string
	SenderEmail              string
	VerificationEmailBaseURL string
	PasswordResetBaseURL     string
}

func (s *SMTPEmailService) sendPlain(toEmail, subject, body string) error {
	header := make(map[string]string)
	header["From"] = s.SenderEmail
	header["To"] = toEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	return smtp.SendMail(addr, auth, s.SenderEmail, []string{toEmail}, []byte(message))
}

func (s *SMTPEmailService) SendVerificationEmail(toEmail, username, token string) error {
	subject := "Verify Your Email Address for CryptoCGT"
	verificationLink := fmt.Sprintf("%s?token=%s", s.VerificationEmailBaseURL, token)
	body := fmt.Sprintf(`Hi %s,

Please verify your email by clicking this link: %s

Thanks,
The CryptoCGT Team`, username, verificationLink)

	if err := s.sendPlain(toEmail, subject, body); err != nil {
		logger.L.Error("Failed to send verification email via SMTP", "error", err, "to", toEmail)
		return fmt.Errorf("failed to send verification email via SMTP: %w", err)
	}
	logger.L.Info("Verification email sent successfully via SMTP", "to", toEmail)
	return nil
}

func (s *SMTPEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	subject := "Password Reset Request for CryptoCGT"
	resetLink := fmt.Sprintf("%s?token=%s", s.PasswordResetBaseURL, token)
	body := fmt.Sprintf(`Hi %s,

You requested a password reset for your CryptoCGT account.
Please click the following link to reset your password:
%s

If you did not request a password reset, please ignore this email. This link will expire in %s.

Thanks,
The CryptoCGT Team`, username, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	if err := s.sendPlain(toEmail, subject, body); err != nil {
		logger.L.Error("Failed to send password reset email via SMTP", "error", err, "to", toEmail)
		return fmt.Errorf("failed to send password reset email via SMTP: %w", err)
	}
	logger.L.Info("Password reset email sent successfully via SMTP", "to", toEmail)
	return nil
}

type MailgunEmailService struct {
	mg                       mailgun.Mailgun
	senderEmail              string
	senderName               string
	verificationEmailBaseURL string
	passwordResetBaseURL     string
}

func (s *MailgunEmailService) SendVerificationEmail(toEmail, username, token string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := "Verify Your Email Address for CryptoCGT"

	verificationLink := fmt.Sprintf("%s?token=%s", s.verificationEmailBaseURL, token)

	plainTextBody := fmt.Sprintf(`Hi %s,

Welcome to CryptoCGT! Please verify your email address by clicking the link below:
%s

If you did not create an account using this email address, please ignore this email.

Thanks,
The CryptoCGT Team`, username, verificationLink)

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p>Welcome to CryptoCGT! Please verify your email address by clicking the link below:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8; text-decoration: none; font-weight: bold; padding: 10px 15px; border: 1px solid #1a73e8; border-radius: 4px; background-color: #e8f0fe;">Verify Email Address</a></p>
			<p>If the button above doesn't work, you can copy and paste the following URL into your browser's address bar:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8;">%s</a></p>
			<p>If you did not create an account using this email address, please ignore this email.</p>
			<p>Thanks,<br>The CryptoCGT Team</p>
		</body>
	</html>`, username, verificationLink, verificationLink, verificationLink)

	message := s.mg.NewMessage(from, subject, plainTextBody, toEmail)
	message.SetHtml(htmlBody)
	message.AddTag("email-verification")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send verification email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Verification email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

func (s *MailgunEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := "Password Reset Request for CryptoCGT"

	resetLink := fmt.Sprintf("%s?token=%s", s.passwordResetBaseURL, token)

	plainTextBody := fmt.Sprintf(`Hi %s,

You requested a password reset for your CryptoCGT account.
Please click the following link to reset your password:
%s

If you did not request a password reset, please ignore this email. This link will expire in %s.

Thanks,
The CryptoCGT Team`, username, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi %s,</p>
			<p>You requested a password reset for your CryptoCGT account. Please click the button below to reset your password:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8; text-decoration: none; font-weight: bold; padding: 10px 15px; border: 1px solid #1a73e8; border-radius: 4px; background-color: #e8f0fe;">Reset Password</a></p>
			<p>If the button above doesn't work, copy and paste this link into your browser:</p>
			<p><a href="%s" target="_blank" style="color: #1a73e8;">%s</a></p>
			<p>If you did not request this reset, please ignore this email. This link will expire in %s.</p>
			<p>Thanks,<br>The CryptoCGT Team</p>
		</body>
	</html>`, username, resetLink, resetLink, resetLink, config.Cfg.PasswordResetTokenExpiry.String())

	message := s.mg.NewMessage(from, subject, plainTextBody, toEmail)
	message.SetHtml(htmlBody)
	message.AddTag("password-reset")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send password reset email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed for password reset: %w. Response: %s", err, resp)
	}

	logger.L.Info("Password reset email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

type MockEmailService struct {
	VerificationEmailBaseURL string
	PasswordResetBaseURL     string
}

func (m *MockEmailService) SendVerificationEmail(toEmail, username, token string) error {
	verificationLink := ""
	if m.VerificationEmailBaseURL != "" {
		verificationLink = fmt.Sprintf("%s?token=%s", m.VerificationEmailBaseURL, token)
	} else if config.Cfg != nil && config.Cfg.VerificationEmailBaseURL != "" {
		verificationLink = fmt.Sprintf("%s?token=%s", config.Cfg.VerificationEmailBaseURL, token)
	}
	logger.L.Info("MockEmailService: Would send verification email.", "to", toEmail, "username", username, "verificationLink", verificationLink)
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(toEmail, username, token string) error {
	resetLink := ""
	expiry := "an hour (default)"
	if m.PasswordResetBaseURL != "" {
		resetLink = fmt.Sprintf("%s?token=%s", m.PasswordResetBaseURL, token)
	} else if config.Cfg != nil && config.Cfg.PasswordResetBaseURL != "" {
		resetLink = fmt.Sprintf("%s?token=%s", config.Cfg.PasswordResetBaseURL, token)
	}
	if config.Cfg != nil {
		expiry = config.Cfg.PasswordResetTokenExpiry.String()
	}

	logger.L.Info("MockEmailService: Would send password reset email.", "to", toEmail, "username", username, "resetLink", resetLink, "expiresIn", expiry)
	return nil
}
