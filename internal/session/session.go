// Package session reads the viewer's identity from the cookies the booking
// backend issues at login. It never talks to the network.
package session

import (
	"net/http"
	"net/url"

	"eventboard/internal/model"
)

// Cookie names issued by the backend.
const (
	CookieUsername = "username"
	CookieUserID   = "user_id"
	CookieRole     = "role"
)

var identityCookies = []string{CookieUsername, CookieUserID, CookieRole}

// Reader answers identity questions over a fixed set of cookies.
type Reader struct {
	values map[string]string
}

// NewReader builds a Reader. Later cookies with the same name win, matching
// how a browser would overwrite them.
func NewReader(cookies []*http.Cookie) Reader {
	values := make(map[string]string, len(identityCookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		values[c.Name] = c.Value
	}
	return Reader{values: values}
}

func (r Reader) get(name string) string {
	raw, ok := r.values[name]
	if !ok || raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// CurrentUserID returns the user id, or "" when not logged in.
func (r Reader) CurrentUserID() string {
	return r.get(CookieUserID)
}

// CurrentRole returns the role, or "" when absent or unrecognised.
func (r Reader) CurrentRole() model.Role {
	return model.ParseRole(r.get(CookieRole))
}

// Username returns the decoded display name.
func (r Reader) Username() string {
	return r.get(CookieUsername)
}

// Session collects the three signals.
func (r Reader) Session() model.Session {
	return model.Session{
		UserID:   r.CurrentUserID(),
		Role:     r.CurrentRole(),
		Username: r.Username(),
	}
}

// Read is shorthand for NewReader(cookies).Session().
func Read(cookies []*http.Cookie) model.Session {
	return NewReader(cookies).Session()
}

// FromRequest reads the session from an incoming request.
func FromRequest(r *http.Request) model.Session {
	return Read(r.Cookies())
}

// Forward returns the identity cookies worth passing on to the backend,
// dropping everything else the browser sent.
func Forward(cookies []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(identityCookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		for _, name := range identityCookies {
			if c.Name == name {
				out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
				break
			}
		}
	}
	return out
}

// Clear returns expired identity cookies, used on logout.
func Clear() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(identityCookies))
	for _, name := range identityCookies {
		out = append(out, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	return out
}
