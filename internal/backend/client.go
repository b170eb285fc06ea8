// Package backend is the HTTP client for the booking backend. Every call
// forwards the viewer's identity cookies and returns either the decoded
// payload, an *APIError carrying the backend's own text, or a
// *TransportError when no response was obtained.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// maxBody bounds how much of a text or JSON response is read.
const maxBody = 4 << 20

// APIError is a non-success response. Message is the backend's body text,
// shown to the user verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// TransportError means the request failed before a response arrived.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Client talks to one backend on behalf of one viewer.
type Client struct {
	base    *url.URL
	http    *http.Client
	cookies []*http.Cookie
}

// New creates a client for baseURL. A nil hc gets a client without a fixed
// timeout; callers bound calls through the context. Redirects are never
// followed so login and logout Set-Cookie headers reach the caller.
func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q is not absolute", baseURL)
	}

	var c http.Client
	if hc != nil {
		c = *hc
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{base: u, http: &c}, nil
}

// WithCookies returns a copy of c that sends cookies on every request.
func (c *Client) WithCookies(cookies []*http.Cookie) *Client {
	cp := *c
	cp.cookies = cookies
	return &cp
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	appLog.Debug("backend request", "op", op, "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		appLog.Error("backend request failed", err, "op", op, "path", path)
		return nil, &TransportError{Op: op, Err: err}
	}
	return resp, nil
}

// success reports a 2xx status. The form endpoints answer a browser post
// with a redirect, so for them a 3xx counts too.
func success(status int, redirectOK bool) bool {
	if redirectOK && status >= 300 && status < 400 {
		return true
	}
	return status >= 200 && status < 300
}

func readText(resp *http.Response) (string, error) {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// text performs a request whose success body is a plain message.
func (c *Client) text(ctx context.Context, op, method, path string, body io.Reader, contentType string, redirectOK bool) (string, *http.Response, error) {
	resp, err := c.do(ctx, op, method, path, body, contentType)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	msg, err := readText(resp)
	if err != nil {
		return "", resp, &TransportError{Op: op, Err: err}
	}
	if !success(resp.StatusCode, redirectOK) {
		return "", resp, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return msg, resp, nil
}

// getJSON decodes a successful JSON response into v.
func (c *Client) getJSON(ctx context.Context, op, path string, v any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode, false) {
		msg, _ := readText(resp)
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}
	msg, _, err := c.text(ctx, op, http.MethodPost, path, bytes.NewReader(body), "application/json", false)
	return msg, err
}

// Events fetches every event, in backend order.
func (c *Client) Events(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.getJSON(ctx, "list events", "/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Event fetches a single event by id.
func (c *Client) Event(ctx context.Context, id string) (model.Event, error) {
	var ev model.Event
	err := c.getJSON(ctx, "get event", "/events/"+url.PathEscape(id), &ev)
	return ev, err
}

// Reminders fetches the events the viewer has booked.
func (c *Client) Reminders(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.getJSON(ctx, "list reminders", "/reminders", &events); err != nil {
		return nil, err
	}
	return events, nil
}

type eventRef struct {
	EventID string `json:"eventId"`
}

// Book asks for a seat (or a waitlist place when full).
func (c *Client) Book(ctx context.Context, eventID string) (string, error) {
	return c.postJSON(ctx, "book event", "/book-event", eventRef{EventID: eventID})
}

func (c *Client) CancelBooking(ctx context.Context, eventID string) (string, error) {
	return c.postJSON(ctx, "cancel booking", "/cancel-booking", eventRef{EventID: eventID})
}

func (c *Client) CancelWaitlist(ctx context.Context, eventID string) (string, error) {
	return c.postJSON(ctx, "cancel waitlist", "/cancel-waitlist", eventRef{EventID: eventID})
}

// ViewAttendees returns the backend's attendee summary text.
func (c *Client) ViewAttendees(ctx context.Context, eventID string) (string, error) {
	return c.postJSON(ctx, "view attendees", "/view-attendees", eventRef{EventID: eventID})
}

func (c *Client) DeleteEvent(ctx context.Context, eventID string) (string, error) {
	return c.postJSON(ctx, "delete event", "/delete-event", eventRef{EventID: eventID})
}

type roleChange struct {
	UserID  string     `json:"userId"`
	NewRole model.Role `json:"newRole"`
}

func (c *Client) UpdateRole(ctx context.Context, userID string, role model.Role) (string, error) {
	return c.postJSON(ctx, "update role", "/update-role", roleChange{UserID: userID, NewRole: role})
}

// Users fetches the administrative user list.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.getJSON(ctx, "list users", "/api/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) Summary(ctx context.Context) (model.Summary, error) {
	var s model.Summary
	err := c.getJSON(ctx, "analytics summary", "/api/analytics/summary", &s)
	return s, err
}

func (c *Client) Weekly(ctx context.Context) (model.Series, error) {
	var s model.Series
	err := c.getJSON(ctx, "analytics weekly", "/api/analytics/weekly", &s)
	return s, err
}

func (c *Client) Daily(ctx context.Context) (model.Series, error) {
	var s model.Series
	err := c.getJSON(ctx, "analytics daily", "/api/analytics/daily", &s)
	return s, err
}

// Field is one multipart form field, kept ordered.
type Field struct {
	Name  string
	Value string
}

func multipartBody(fields []Field) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) postForm(ctx context.Context, op, path string, fields []Field) (string, *http.Response, error) {
	body, contentType, err := multipartBody(fields)
	if err != nil {
		return "", nil, fmt.Errorf("%s: encode form: %w", op, err)
	}
	return c.text(ctx, op, http.MethodPost, path, body, contentType, true)
}

// CreateEvent submits the event-creation form.
func (c *Client) CreateEvent(ctx context.Context, fields []Field) (string, error) {
	msg, _, err := c.postForm(ctx, "create event", "/create/submit-event", fields)
	return msg, err
}

// Login submits credentials and returns the identity cookies the backend set.
func (c *Client) Login(ctx context.Context, email, password string) ([]*http.Cookie, error) {
	_, resp, err := c.postForm(ctx, "login", "/login", []Field{
		{Name: "email", Value: email},
		{Name: "password", Value: password},
	})
	if err != nil {
		return nil, err
	}
	return resp.Cookies(), nil
}

// Register creates a student account.
func (c *Client) Register(ctx context.Context, fullName, email, password string) error {
	_, _, err := c.postForm(ctx, "register", "/register", []Field{
		{Name: "full_name", Value: fullName},
		{Name: "email", Value: email},
		{Name: "password", Value: password},
	})
	return err
}

// Download is a streamed binary response.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

// BookingConfirmation opens the PDF confirmation for a booked event. The
// caller must close Body.
func (c *Client) BookingConfirmation(ctx context.Context, eventID string) (*Download, error) {
	path := "/booking-confirmation/" + url.PathEscape(eventID)
	resp, err := c.do(ctx, "booking confirmation", http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if !success(resp.StatusCode, false) {
		defer resp.Body.Close()
		msg, _ := readText(resp)
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	filename := "booking_" + eventID + ".pdf"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &Download{Body: resp.Body, ContentType: contentType, Filename: filename}, nil
}
