package mail

import (
	"fmt"
	"html"
	"time"
)

const (
	SubjectVerify = "Verify your email"
	SubjectReset  = "Reset Your Password"
)

func OTPBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("<p>Your OTP is <strong>%s</strong>. It expires in %s.</p>", html.EscapeString(code), humanize(ttl))
}

func ResetBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(`<p>Hi,</p>
<p>Click the link below to reset your password:</p>
<p><a href="%s">Reset Password</a></p>
<p>This link will expire in %s.</p>`, html.EscapeString(link), humanize(ttl))
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if n := int(d / time.Minute); n != 1 {
			return fmt.Sprintf("%d minutes", n)
		}
		return "1 minute"
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}
