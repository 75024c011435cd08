package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes the OTP to the log instead of sending it. Config refuses
// it when APP_ENV=production.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTP(ctx context.Context, email, otp string) error {
	n.logger.InfoContext(ctx, "otp issued (log notifier)", "email", email, "otp", otp)
	return nil
}
