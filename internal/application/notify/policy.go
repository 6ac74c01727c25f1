// Package notify decides when a login warrants a security email and describes
// the client that logged in.
package notify

import (
	"strings"
	"time"
)

// Throttle is the minimum gap between two login notifications for one account.
const Throttle = time.Hour

// ShouldNotify reports whether a login at now should trigger a notification
// given the time of the previous one.
func ShouldNotify(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) > Throttle
}

// Client is the request metadata shown in a login notification.
type Client struct {
	IP        string
	UserAgent string
	Browser   string
	Device    string
}

// Describe fills Browser and Device from the user agent.
func Describe(ip, userAgent string) Client {
	return Client{
		IP:        ip,
		UserAgent: userAgent,
		Browser:   browserOf(userAgent),
		Device:    deviceOf(userAgent),
	}
}

// Edge and Chrome both advertise Safari, and Edge also advertises Chrome,
// so the most specific token is checked first.
func browserOf(ua string) string {
	switch {
	case strings.Contains(ua, "Edg"):
		return "Edge"
	case strings.Contains(ua, "Chrome"):
		return "Chrome"
	case strings.Contains(ua, "Firefox"):
		return "Firefox"
	case strings.Contains(ua, "Safari"):
		return "Safari"
	default:
		return "Unknown Browser"
	}
}

func deviceOf(ua string) string {
	switch {
	case strings.Contains(ua, "Mobile"):
		return "Mobile Device"
	case strings.Contains(ua, "Tablet"), strings.Contains(ua, "iPad"):
		return "Tablet"
	default:
		return "Desktop"
	}
}
