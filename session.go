package linkedinmessaging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Cookie names that carry session identity. csrfCookieName doubles as
// the source of the csrf-token request header.
const (
	authCookieName = "li_at"
	csrfCookieName = "JSESSIONID"
)

// Session is the authenticated state of one client: a domain-scoped
// cookie jar plus the CSRF token derived from the session cookie. It
// implements http.CookieJar so cookie rotation on any response flows
// straight back into it, and it serializes to an opaque blob so a
// session survives process restarts.
//
// A Session is owned by exactly one Client. Re-authenticating discards
// it and starts a fresh one.
type Session struct {
	mu      sync.Mutex
	cookies map[string]map[string]*http.Cookie // domain → name → cookie
	csrf    string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{cookies: make(map[string]map[string]*http.Cookie)}
}

// sessionCookie is the serialized form of one cookie.
type sessionCookie struct {
	Domain   string    `json:"domain"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}

// RestoreSession rebuilds a session from a blob produced by Serialize.
// It fails with ErrCorruptSession when the blob is not a serialized
// cookie jar. The CSRF token is recomputed from the restored cookies.
func RestoreSession(data []byte) (*Session, error) {
	var cookies []sessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	s := NewSession()
	for _, sc := range cookies {
		s.store(sc.Domain, &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			Expires:  sc.Expires,
			Secure:   sc.Secure,
			HttpOnly: sc.HTTPOnly,
		})
	}
	return s, nil
}

// Serialize captures the full cookie jar as an opaque blob. The format
// round-trips through RestoreSession within the same codebase; it makes
// no cross-version promises.
func (s *Session) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []sessionCookie
	for domain, byName := range s.cookies {
		for _, c := range byName {
			out = append(out, sessionCookie{
				Domain:   domain,
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HTTPOnly: c.HttpOnly,
			})
		}
	}
	return json.Marshal(out)
}

// SetCookies implements http.CookieJar. Cookies with a negative MaxAge
// or an expiry in the past are deleted. Updating the session cookie
// recomputes the derived CSRF token.
func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == "" {
			domain = u.Hostname()
		}
		expired := c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now()))
		if expired {
			if byName := s.cookies[domain]; byName != nil {
				delete(byName, c.Name)
			}
			if c.Name == csrfCookieName {
				s.csrf = ""
			}
			continue
		}
		s.store(domain, c)
	}
}

// store records a cookie under domain and keeps the CSRF token in sync.
// Callers must hold s.mu (RestoreSession runs before the session is
// shared, so it calls store without the lock).
func (s *Session) store(domain string, c *http.Cookie) {
	domain = strings.TrimPrefix(domain, ".")
	byName := s.cookies[domain]
	if byName == nil {
		byName = make(map[string]*http.Cookie)
		s.cookies[domain] = byName
	}
	byName[c.Name] = c
	if c.Name == csrfCookieName {
		// The cookie value arrives wrapped in literal quotes; the header
		// wants the bare token.
		s.csrf = strings.Trim(c.Value, `"`)
	}
}

// Cookies implements http.CookieJar, returning every live cookie whose
// domain matches the request host.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := u.Hostname()
	var out []*http.Cookie
	for domain, byName := range s.cookies {
		if !domainMatch(host, domain) {
			continue
		}
		for _, c := range byName {
			if !c.Expires.IsZero() && c.Expires.Before(time.Now()) {
				continue
			}
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return out
}

// domainMatch reports whether a cookie set for domain applies to host.
func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// CSRFToken returns the token derived from the session cookie, or ""
// when the session has no session cookie.
func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf
}

// HasAuthCookies reports whether the full required cookie set for an
// authenticated session is present: the long-lived auth cookie and the
// session cookie.
func (s *Session) HasAuthCookies() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := map[string]bool{}
	for _, byName := range s.cookies {
		for name := range byName {
			found[name] = true
		}
	}
	return found[authCookieName] && found[csrfCookieName]
}
