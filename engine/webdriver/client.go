// Package webdriver is a ProtocolClient speaking the W3C WebDriver protocol over
// http to chromedriver, geckodriver or a selenium grid.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"gitlab.com/driverk/driverk"
)

// ElementKey is the web element identifier key of W3C element references
const ElementKey = "element-6066-11e4-a52e-4f735466cecf"

const legacyElementKey = "ELEMENT"

const maxResponseSize = 16 * 1024 * 1024

// Capabilities requested for a new session (alwaysMatch)
type Capabilities map[string]interface{}

// ChromeCapabilities for chromedriver, optionally headless
func ChromeCapabilities(headless bool) Capabilities {
	caps := Capabilities{"browserName": "chrome"}
	if headless {
		caps["goog:chromeOptions"] = map[string]interface{}{
			"args": []string{"--headless=new", "--disable-gpu", "--no-sandbox"},
		}
	}
	return caps
}

// FirefoxCapabilities for geckodriver, optionally headless
func FirefoxCapabilities(headless bool) Capabilities {
	caps := Capabilities{"browserName": "firefox"}
	if headless {
		caps["moz:firefoxOptions"] = map[string]interface{}{
			"args": []string{"-headless"},
		}
	}
	return caps
}

// Client for one remote session
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	closed     int32
}

var _ driverk.ProtocolClient = (*Client)(nil)
var _ driverk.Navigator = (*Client)(nil)

// Option configures a Client
type Option func(c *Client)

// WithHTTPClient replaces the default http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func newClient(remoteURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(remoteURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession creates a session on the remote end
func NewSession(ctx context.Context, remoteURL string, caps Capabilities, opts ...Option) (*Client, error) {
	c := newClient(remoteURL, opts...)
	if caps == nil {
		caps = Capabilities{}
	}
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{"alwaysMatch": caps},
	}

	value, err := c.do(ctx, "new session", http.MethodPost, c.baseURL+"/session", body)
	if err != nil {
		return nil, err
	}

	c.sessionID = value.Get("sessionId").String()
	if c.sessionID == "" {
		return nil, &driverk.ProtocolErr{Command: "new session", Message: "response did not contain a session id"}
	}
	log.Info().Str("session_id", c.sessionID).Str("browser", value.Get("capabilities.browserName").String()).Msg("webdriver session created")
	return c, nil
}

// Attach to an already running session
func Attach(remoteURL, sessionID string, opts ...Option) *Client {
	c := newClient(remoteURL, opts...)
	c.sessionID = sessionID
	return c
}

// SessionID of the remote session
func (c *Client) SessionID() string {
	return c.sessionID
}

// Close deletes the remote session, later calls fail with ErrSessionClosed
func (c *Client) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	_, err := c.do(ctx, "delete session", http.MethodDelete, c.sessionURL(), nil)
	if err != nil && !errors.Is(err, driverk.ErrSessionClosed) {
		return err
	}
	log.Info().Str("session_id", c.sessionID).Msg("webdriver session deleted")
	return nil
}

// Navigate the current top level browsing context to url
func (c *Client) Navigate(ctx context.Context, target string) error {
	_, err := c.command(ctx, "navigate to", http.MethodPost, "/url", map[string]string{"url": target})
	return err
}

// FindElements matching sel, under scope if it is not nil
func (c *Client) FindElements(ctx context.Context, sel driverk.Selector, scope *driverk.ElementHandle) ([]driverk.ElementHandle, error) {
	using, value, err := Strategy(sel)
	if err != nil {
		return nil, err
	}

	path := "/elements"
	if scope != nil {
		path = elementPath(*scope, "/elements")
	}

	result, err := c.command(ctx, "find elements", http.MethodPost, path, map[string]string{"using": using, "value": value})
	if err != nil {
		if scope != nil {
			return nil, staleID(err, scope.ID)
		}
		return nil, err
	}
	if !result.IsArray() {
		return nil, &driverk.ProtocolErr{Command: "find elements", Message: "expected an array of element references, got " + result.Raw}
	}

	refs := result.Array()
	handles := make([]driverk.ElementHandle, 0, len(refs))
	for _, ref := range refs {
		id := elementID(ref)
		if id == "" {
			return nil, &driverk.ProtocolErr{Command: "find elements", Message: "malformed element reference " + ref.Raw}
		}
		handles = append(handles, driverk.ElementHandle{ID: id})
	}
	return handles, nil
}

// Attribute of h, ok is false when the attribute is not present
func (c *Client) Attribute(ctx context.Context, h driverk.ElementHandle, name string) (string, bool, error) {
	result, err := c.elementCommand(ctx, "get element attribute", http.MethodGet, h, "/attribute/"+url.PathEscape(name), nil)
	if err != nil {
		return "", false, err
	}
	if result.Type == gjson.Null {
		return "", false, nil
	}
	return result.String(), true, nil
}

// IsDisplayed of h
func (c *Client) IsDisplayed(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return c.boolean(ctx, "is element displayed", h, "/displayed")
}

// IsEnabled of h
func (c *Client) IsEnabled(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return c.boolean(ctx, "is element enabled", h, "/enabled")
}

// IsClickable if h is displayed, enabled, has a size and its center hit tests
// to the element itself or one of its descendants.
func (c *Client) IsClickable(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	displayed, err := c.IsDisplayed(ctx, h)
	if err != nil || !displayed {
		return false, err
	}
	enabled, err := c.IsEnabled(ctx, h)
	if err != nil || !enabled {
		return false, err
	}
	rect, err := c.Rect(ctx, h)
	if err != nil || rect.Empty() {
		return false, err
	}

	body := map[string]interface{}{
		"script": hitTestScript,
		"args":   []interface{}{elementRef(h)},
	}
	result, err := c.command(ctx, "execute script", http.MethodPost, "/execute/sync", body)
	if err != nil {
		return false, staleID(err, h.ID)
	}
	return result.Bool(), nil
}

const hitTestScript = `var el = arguments[0];
var r = el.getBoundingClientRect();
var hit = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
return hit !== null && (hit === el || el.contains(hit));`

// Rect of h in css pixels relative to the document
func (c *Client) Rect(ctx context.Context, h driverk.ElementHandle) (driverk.Rect, error) {
	result, err := c.elementCommand(ctx, "get element rect", http.MethodGet, h, "/rect", nil)
	if err != nil {
		return driverk.Rect{}, err
	}
	return driverk.Rect{
		X:      result.Get("x").Float(),
		Y:      result.Get("y").Float(),
		Width:  result.Get("width").Float(),
		Height: result.Get("height").Float(),
	}, nil
}

// Text is the rendered text of h
func (c *Client) Text(ctx context.Context, h driverk.ElementHandle) (string, error) {
	result, err := c.elementCommand(ctx, "get element text", http.MethodGet, h, "/text", nil)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// ClassList of h from its class attribute
func (c *Client) ClassList(ctx context.Context, h driverk.ElementHandle) ([]string, error) {
	class, _, err := c.Attribute(ctx, h, "class")
	if err != nil {
		return nil, err
	}
	return strings.Fields(class), nil
}

func (c *Client) boolean(ctx context.Context, command string, h driverk.ElementHandle, suffix string) (bool, error) {
	result, err := c.elementCommand(ctx, command, http.MethodGet, h, suffix, nil)
	if err != nil {
		return false, err
	}
	if result.Type != gjson.True && result.Type != gjson.False {
		return false, &driverk.ProtocolErr{Command: command, Message: "expected a boolean, got " + result.Raw}
	}
	return result.Bool(), nil
}

func (c *Client) elementCommand(ctx context.Context, command, method string, h driverk.ElementHandle, suffix string, body interface{}) (gjson.Result, error) {
	result, err := c.command(ctx, command, method, elementPath(h, suffix), body)
	if err != nil {
		return result, staleID(err, h.ID)
	}
	return result, nil
}

// command runs a session scoped command and returns its value
func (c *Client) command(ctx context.Context, command, method, path string, body interface{}) (gjson.Result, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return gjson.Result{}, driverk.ErrSessionClosed
	}
	return c.do(ctx, command, method, c.sessionURL()+path, body)
}

func (c *Client) do(ctx context.Context, command, method, target string, body interface{}) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "encoding request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "creating request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gjson.Result{}, ctxErr
		}
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Status: resp.StatusCode, Message: "reading response", Err: err}
	}
	log.Debug().Str("command", command).Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("webdriver")

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Status: resp.StatusCode, Message: "malformed response: " + truncate(string(data))}
	}

	value := gjson.GetBytes(data, "value")
	if resp.StatusCode >= http.StatusBadRequest {
		return value, remoteError(command, resp.StatusCode, value)
	}
	return value, nil
}

func (c *Client) sessionURL() string {
	return c.baseURL + "/session/" + url.PathEscape(c.sessionID)
}

func elementPath(h driverk.ElementHandle, suffix string) string {
	return "/element/" + url.PathEscape(h.ID) + suffix
}

func elementRef(h driverk.ElementHandle) map[string]string {
	return map[string]string{ElementKey: h.ID}
}

func elementID(ref gjson.Result) string {
	if id := ref.Get(ElementKey); id.Exists() {
		return id.String()
	}
	return ref.Get(legacyElementKey).String()
}

// remoteError maps a W3C error response onto our error types
func remoteError(command string, status int, value gjson.Result) error {
	code := value.Get("error").String()
	message := value.Get("message").String()
	switch code {
	case "stale element reference":
		return &driverk.StaleElementErr{Message: message}
	case "no such window":
		return &driverk.NoSuchWindowErr{Message: message}
	case "invalid session id":
		return driverk.ErrSessionClosed
	}
	return &driverk.ProtocolErr{Command: command, Status: status, Code: code, Message: message}
}

// staleID fills in the element id of a stale error, the remote end does not report it
func staleID(err error, id string) error {
	var stale *driverk.StaleElementErr
	if errors.As(err, &stale) && stale.ID == "" {
		stale.ID = id
	}
	return err
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
