package templates

import (
	"fmt"
	"time"
)

const timeLayout = "02 January 2006, 15:04 MST"

// Brand carries the sender identity rendered into every email.
type Brand struct {
	AppName        string
	CompanyName    string
	CompanyAddress string
	LogoURL        string
	SupportURL     string
	PrivacyURL     string
	DashboardURL   string
}

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = ip } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithClient(browser, device string) Option {
	return func(d *EmailData) {
		d.Browser = browser
		d.Device = device
	}
}
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format(timeLayout)
	}
}
func WithVerifyURL(url string) Option { return func(d *EmailData) { d.VerifyURL = url } }
func WithResetURL(url string) Option  { return func(d *EmailData) { d.ResetURL = url } }

// WithExpiry records when the mailed token stops working and how long it lives.
func WithExpiry(at time.Time, ttl time.Duration) Option {
	return func(d *EmailData) {
		utc := at.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format(timeLayout)
		d.ExpiresIn = humanizeDuration(ttl)
	}
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// NewBaseEmailData fills the common fields from brand, then applies opts.
func NewBaseEmailData(brand Brand, typ string, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:  name,
		Email: email,
		Type:  typ,

		AppName:        brand.AppName,
		CompanyName:    brand.CompanyName,
		CompanyAddress: brand.CompanyAddress,
		LogoURL:        brand.LogoURL,
		SupportURL:     brand.SupportURL,
		PrivacyURL:     brand.PrivacyURL,
		DashboardURL:   brand.DashboardURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewVerifyEmailData(brand Brand, name, email, verifyURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithVerifyURL(verifyURL)}, opts...)
	return ToMap(NewBaseEmailData(brand, VerifyEmail, name, email, opts...))
}

func NewWelcomeData(brand Brand, name, email string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(brand, Welcome, name, email, opts...))
}

func NewResetPasswordData(brand Brand, name, email, resetURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithResetURL(resetURL)}, opts...)
	return ToMap(NewBaseEmailData(brand, ResetPassword, name, email, opts...))
}

func NewLoginNotificationData(brand Brand, name, email, recoveryURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithResetURL(recoveryURL)}, opts...)
	return ToMap(NewBaseEmailData(brand, LoginNotification, name, email, opts...))
}
