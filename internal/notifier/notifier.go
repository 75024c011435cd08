// Package notifier delivers one-time passwords out of band.
package notifier

import "context"

// Notifier sends an OTP to an account's registered email address.
type Notifier interface {
	SendOTP(ctx context.Context, email, otp string) error
}
