package auth

import "context"

// NoopMailer drops every message. Useful in tests and local setups where
// the verification code is read from the log instead.
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, string, string, string) error {
	return nil
}

// LoggerMailer writes outgoing messages to the logger instead of sending
// them. The default mailer in development.
type LoggerMailer struct {
	Logger Logger
}

func NewLoggerMailer(logger Logger) *LoggerMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LoggerMailer{Logger: logger}
}

func (m *LoggerMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("mail to=%s subject=%q body=%q", to, subject, body)
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return NoopMailer{}
	}
	return m
}
