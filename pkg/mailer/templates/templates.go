package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	"sync"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData defines standard fields for email templates.
type EmailData struct {
	// Basic info
	Name  string `json:"Name"`
	Email string `json:"Email"`
	Type  string `json:"Type"`

	// Brand
	AppName        string `json:"AppName"`
	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	LogoURL        string `json:"LogoURL"`
	SupportURL     string `json:"SupportURL"`
	PrivacyURL     string `json:"PrivacyURL"`

	// Action URLs
	VerifyURL    string `json:"VerifyURL"`
	ResetURL     string `json:"ResetURL"`
	DashboardURL string `json:"DashboardURL"`

	// Token expiry
	ExpiresAt     time.Time `json:"ExpiresAt"`
	ExpiresAtText string    `json:"ExpiresAtText"`
	ExpiresIn     string    `json:"ExpiresIn"`

	// Login context
	IP        string    `json:"IP"`
	UserAgent string    `json:"UserAgent"`
	Browser   string    `json:"Browser"`
	Device    string    `json:"Device"`
	Time      string    `json:"Time"`
	TimeAt    time.Time `json:"TimeAt"`
}

// ToMap converts EmailData to the map carried in EmailJob.Data, keyed by the
// field names the templates reference.
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		zero := reflect.Zero(rv.Type()).Interface()
		if reflect.DeepEqual(value, zero) {
			return fallback
		}
		return value
	}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"now":     func() time.Time { return time.Now().UTC() },
		"upper":   strings.ToUpper,
		"default": defaultFn,
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

// Template names
const (
	VerifyEmail       = "verify_email"
	Welcome           = "welcome"
	ResetPassword     = "reset_password"
	LoginNotification = "login_notification"
)

// Names lists every template shipped in FS.
var Names = []string{VerifyEmail, Welcome, ResetPassword, LoginNotification}

// ErrUnknownTemplate is returned by Render for a name not in Names.
var ErrUnknownTemplate = errors.New("unknown email template")

// set holds every template in FS, parsed once on first use. Text and subject
// files share one text/template set; html files use html/template.
type set struct {
	text *texttpl.Template
	html *htmpl.Template
}

var (
	loadOnce sync.Once
	loaded   set
	loadErr  error
)

func load() (set, error) {
	loadOnce.Do(func() {
		loaded.text, loadErr = texttpl.New("").Funcs(textFuncMap).ParseFS(FS, "*.subject.tmpl", "*.text.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse text templates: %w", loadErr)
			return
		}
		loaded.html, loadErr = htmpl.New("").Funcs(htmlFuncMap).ParseFS(FS, "*.html.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse html templates: %w", loadErr)
		}
	})
	return loaded, loadErr
}

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

func execute(t executor, filename string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, filename, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", filename, err)
	}
	return buf.String(), nil
}

// Render renders <name>.subject.tmpl, <name>.text.tmpl and <name>.html.tmpl.
// The subject is trimmed to a single line.
func Render(name string, data any) (subject string, text string, html string, err error) {
	s, err := load()
	if err != nil {
		return "", "", "", err
	}
	if s.text.Lookup(name+".subject.tmpl") == nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	if subject, err = execute(s.text, name+".subject.tmpl", data); err != nil {
		return "", "", "", err
	}
	if text, err = execute(s.text, name+".text.tmpl", data); err != nil {
		return "", "", "", err
	}
	if html, err = execute(s.html, name+".html.tmpl", data); err != nil {
		return "", "", "", err
	}
	return strings.Join(strings.Fields(subject), " "), text, html, nil
}
