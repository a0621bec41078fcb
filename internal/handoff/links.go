package handoff

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Sentinel errors returned by Build.
var (
	ErrUnparseableLink  = errors.New("handoff: unparseable link")
	ErrNotMessagingLink = errors.New("handoff: not a messaging host link")
)

var (
	nonDigitRe     = regexp.MustCompile(`\D+`)
	phoneSegmentRe = regexp.MustCompile(`^\+?[0-9][0-9\s().-]*$`)
)

// Config names the external messaging application.
type Config struct {
	// Host is the canonical web domain, e.g. "wa.me".
	Host string
	// AppScheme is the operating-system url scheme, e.g. "whatsapp".
	AppScheme string
	// AppPackage is the application id used by intent links.
	AppPackage string
	// Timeout bounds the app-opened race.
	Timeout time.Duration
}

// DefaultConfig targets WhatsApp.
func DefaultConfig() Config {
	return Config{
		Host:       "wa.me",
		AppScheme:  "whatsapp",
		AppPackage: "com.whatsapp",
		Timeout:    1200 * time.Millisecond,
	}
}

// DeepLinkSet holds the link variants derived from one clicked link.
type DeepLinkSet struct {
	Phone     string `json:"phone,omitempty"`
	Text      string `json:"text"`
	WebURL    string `json:"web_url"`
	AppURL    string `json:"app_url"`
	IntentURL string `json:"intent_url"`
}

// IsMessagingHost reports whether rawURL points at host (optionally www.).
func IsMessagingHost(rawURL, host string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || host == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(host)
	return h == host || h == "www."+host
}

// Encode percent-encodes s for a query value, spaces as %20.
func Encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Decorator appends the prefilled message to messaging-host links.
type Decorator struct {
	host  string
	name  func() string
	query func() string
}

// NewDecorator creates a decorator. name and query are read on every call so
// the message tracks the remembered name and the latest query.
func NewDecorator(host string, name, query func() string) *Decorator {
	return &Decorator{host: host, name: name, query: query}
}

// Decorate implements richtext.LinkDecorator. Links on other hosts and
// unparseable links come back unchanged.
func (d *Decorator) Decorate(rawURL string) string {
	if !IsMessagingHost(rawURL, d.host) {
		return rawURL
	}
	var name, query string
	if d.name != nil {
		name = d.name()
	}
	if d.query != nil {
		query = d.query()
	}
	return withText(rawURL, Message(name, query))
}

// withText sets the text query parameter, keeping every other parameter and
// the fragment untouched.
func withText(rawURL, text string) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")
	path, query, hasQuery := strings.Cut(base, "?")

	param := "text=" + Encode(text)
	var out string
	if !hasQuery || query == "" {
		out = path + "?" + param
	} else {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(query, "&") {
			key, _, _ := strings.Cut(pair, "=")
			if key == "text" || pair == "" {
				continue
			}
			kept = append(kept, pair)
		}
		kept = append(kept, param)
		out = path + "?" + strings.Join(kept, "&")
	}
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// Builder derives DeepLinkSets at click time.
type Builder struct {
	cfg       Config
	decorator *Decorator
}

// NewBuilder creates a builder. decorator supplies the text for links that
// were not decorated at render time and may be nil.
func NewBuilder(cfg Config, decorator *Decorator) *Builder {
	return &Builder{cfg: cfg, decorator: decorator}
}

// Build derives the link variants for href.
func (b *Builder) Build(href string) (DeepLinkSet, error) {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return DeepLinkSet{}, errors.Wrapf(ErrUnparseableLink, "href %q", href)
	}
	if !IsMessagingHost(href, b.cfg.Host) {
		return DeepLinkSet{}, errors.Wrapf(ErrNotMessagingLink, "host %q", u.Host)
	}

	web := href
	if u.Query().Get("text") == "" && b.decorator != nil {
		web = b.decorator.Decorate(href)
		if u, err = url.Parse(web); err != nil {
			return DeepLinkSet{}, errors.Wrapf(ErrUnparseableLink, "decorated href %q", web)
		}
	}

	set := DeepLinkSet{
		Phone:  phoneFrom(u),
		Text:   u.Query().Get("text"),
		WebURL: web,
	}

	params := ""
	if set.Phone != "" {
		params = "phone=" + set.Phone + "&"
	}
	params += "text=" + Encode(set.Text)

	set.AppURL = b.cfg.AppScheme + "://send?" + params
	set.IntentURL = "intent://send?" + params +
		"#Intent;scheme=" + b.cfg.AppScheme + ";package=" + b.cfg.AppPackage + ";end"
	return set, nil
}

// phoneFrom reads the phone from the /<phone> path form or from the phone
// and phoneNumber query parameters, digits only.
func phoneFrom(u *url.URL) string {
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		if phoneSegmentRe.MatchString(seg) {
			return nonDigitRe.ReplaceAllString(seg, "")
		}
		break
	}
	q := u.Query()
	for _, key := range []string{"phone", "phoneNumber"} {
		if digits := nonDigitRe.ReplaceAllString(q.Get(key), ""); digits != "" {
			return digits
		}
	}
	return ""
}

// Preview is a DeepLinkSet together with the platform it targets.
type Preview struct {
	Platform Platform    `json:"platform"`
	Links    DeepLinkSet `json:"links"`
}
