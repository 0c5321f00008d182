package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/driverk/driverk"
)

// revive:exported
const (
	MethodFindElements = "FindElements"
	MethodAttribute    = "Attribute"
	MethodIsDisplayed  = "IsDisplayed"
	MethodIsEnabled    = "IsEnabled"
	MethodIsClickable  = "IsClickable"
	MethodText         = "Text"
	MethodClassList    = "ClassList"
	MethodNavigate     = "Navigate"
)

// Element of the fixture document. Durations are measured from the client's
// clock start (NewClient or ResetClock).
type Element struct {
	ID         string // generated if empty
	Tag        string
	Attributes map[string]string // id, name and class live here too
	Text       string
	Parent     string // ID of the parent element, empty for the document root

	AppearAfter    time.Duration // not in the document before this
	RemoveAfter    time.Duration // stale from this point, 0 for never
	Hidden         bool          // never displayed
	DisplayedAfter time.Duration
	Disabled       bool // never enabled
	EnabledAfter   time.Duration
	Obscured       bool // never clickable
	LateText       string
	LateTextAfter  time.Duration // Text becomes LateText from this point, if LateText is set
}

// Call is one recorded protocol call
type Call struct {
	Method string
	Target string // selector or element id
	At     time.Duration
}

// Client is an in memory ProtocolClient over a fixture document
type Client struct {
	mu       sync.Mutex
	start    time.Time
	elements []*Element
	byID     map[string]*Element
	removed  map[string]bool
	calls    []Call
	failures map[string][]error
	delay    time.Duration
	closed   bool
	url      string
}

var _ driverk.ProtocolClient = (*Client)(nil)

// NewClient with an empty document, its clock starts now
func NewClient() *Client {
	return &Client{
		start:    time.Now(),
		byID:     make(map[string]*Element),
		removed:  make(map[string]bool),
		failures: make(map[string][]error),
	}
}

// ResetClock restarts the fixture timeline
func (c *Client) ResetClock() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// SetLatency makes every call take at least d, respecting ctx
func (c *Client) SetLatency(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

// AddElement appends an element to the end of the document and returns its handle
func (c *Client) AddElement(e Element) driverk.ElementHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	ele := e
	c.elements = append(c.elements, &ele)
	c.byID[ele.ID] = &ele
	return driverk.ElementHandle{ID: ele.ID}
}

// Remove an element (and so its descendants) from the document, handles go stale
func (c *Client) Remove(id string) {
	c.mu.Lock()
	c.removed[id] = true
	c.mu.Unlock()
}

// FailNext queues err to be returned by the next call of method
func (c *Client) FailNext(method string, err error) {
	c.mu.Lock()
	c.failures[method] = append(c.failures[method], err)
	c.mu.Unlock()
}

// Calls returns a copy of every call made so far in order
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]Call, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// CallCount of method
func (c *Client) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, call := range c.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// Close the session, later calls fail with ErrSessionClosed
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// URL last navigated to
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Navigate records the url, the fixture document is unchanged
func (c *Client) Navigate(ctx context.Context, url string) error {
	if err := c.enter(ctx, MethodNavigate, url); err != nil {
		return err
	}
	c.mu.Lock()
	c.url = url
	c.mu.Unlock()
	return nil
}

// FindElements present in the document matching sel, in document order
func (c *Client) FindElements(ctx context.Context, sel driverk.Selector, scope *driverk.ElementHandle) ([]driverk.ElementHandle, error) {
	if err := c.enter(ctx, MethodFindElements, sel.String()); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Since(c.start)

	if scope != nil {
		if _, err := c.present(scope.ID, now); err != nil {
			return nil, err
		}
	}

	found, err := c.snapshot(now).find(sel, now)
	if err != nil {
		return nil, err
	}

	handles := make([]driverk.ElementHandle, 0, len(found))
	for _, ele := range found {
		if scope != nil && !c.isDescendant(ele, scope.ID) {
			continue
		}
		handles = append(handles, driverk.ElementHandle{ID: ele.ID})
	}
	return handles, nil
}

// Attribute of h
func (c *Client) Attribute(ctx context.Context, h driverk.ElementHandle, name string) (string, bool, error) {
	ele, _, err := c.lookup(ctx, MethodAttribute, h)
	if err != nil {
		return "", false, err
	}
	v, ok := ele.Attributes[name]
	return v, ok, nil
}

// IsDisplayed of h
func (c *Client) IsDisplayed(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	ele, now, err := c.lookup(ctx, MethodIsDisplayed, h)
	if err != nil {
		return false, err
	}
	return displayed(ele, now), nil
}

// IsEnabled of h
func (c *Client) IsEnabled(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	ele, now, err := c.lookup(ctx, MethodIsEnabled, h)
	if err != nil {
		return false, err
	}
	return enabled(ele, now), nil
}

// IsClickable of h
func (c *Client) IsClickable(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	ele, now, err := c.lookup(ctx, MethodIsClickable, h)
	if err != nil {
		return false, err
	}
	return displayed(ele, now) && enabled(ele, now) && !ele.Obscured, nil
}

// Text of h
func (c *Client) Text(ctx context.Context, h driverk.ElementHandle) (string, error) {
	ele, now, err := c.lookup(ctx, MethodText, h)
	if err != nil {
		return "", err
	}
	return textAt(ele, now), nil
}

// ClassList of h
func (c *Client) ClassList(ctx context.Context, h driverk.ElementHandle) ([]string, error) {
	ele, _, err := c.lookup(ctx, MethodClassList, h)
	if err != nil {
		return nil, err
	}
	return strings.Fields(ele.Attributes["class"]), nil
}

// enter records the call, applies latency and injected failures
func (c *Client) enter(ctx context.Context, method, target string) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Method: method, Target: target, At: time.Since(c.start)})
	delay := c.delay
	closed := c.closed
	var injected error
	if queued := c.failures[method]; len(queued) > 0 {
		injected = queued[0]
		c.failures[method] = queued[1:]
	}
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if closed {
		return driverk.ErrSessionClosed
	}
	return injected
}

func (c *Client) lookup(ctx context.Context, method string, h driverk.ElementHandle) (*Element, time.Duration, error) {
	if err := c.enter(ctx, method, h.ID); err != nil {
		return nil, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Since(c.start)
	ele, err := c.present(h.ID, now)
	return ele, now, err
}

// present returns the element if it is currently attached, must hold mu
func (c *Client) present(id string, now time.Duration) (*Element, error) {
	ele, ok := c.byID[id]
	if !ok || !c.isPresent(ele, now) {
		return nil, &driverk.StaleElementErr{ID: id, Message: "element is not attached to the page document"}
	}
	return ele, nil
}

func (c *Client) isPresent(ele *Element, now time.Duration) bool {
	for e := ele; e != nil; e = c.byID[e.Parent] {
		if c.removed[e.ID] || now < e.AppearAfter {
			return false
		}
		if e.RemoveAfter > 0 && now >= e.RemoveAfter {
			return false
		}
		if e.Parent == "" {
			break
		}
	}
	return true
}

func (c *Client) isDescendant(ele *Element, ancestor string) bool {
	for p := ele.Parent; p != ""; {
		if p == ancestor {
			return true
		}
		parent, ok := c.byID[p]
		if !ok {
			return false
		}
		p = parent.Parent
	}
	return false
}

func displayed(ele *Element, now time.Duration) bool {
	return !ele.Hidden && now >= ele.DisplayedAfter
}

func enabled(ele *Element, now time.Duration) bool {
	return !ele.Disabled && now >= ele.EnabledAfter
}

func textAt(ele *Element, now time.Duration) string {
	if ele.LateText != "" && now >= ele.LateTextAfter {
		return ele.LateText
	}
	return ele.Text
}
