// Package browser drives a local chromium over the devtools protocol. A Tab is a
// ProtocolClient, browsers are started and reaped by a leaser.
package browser

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/wirepair/gcd"
	"github.com/wirepair/gcd/gcdapi"
	"gitlab.com/driverk/driverk"
)

// revive:exported
var (
	ErrNavigating         = errors.New("error in navigation")
	ErrNavigationTimedOut = errors.New("navigation timed out")
)

// Tab is a chromium tab we locate elements in
type Tab struct {
	id                int64
	g                 *gcd.Gcd
	t                 *gcd.ChromeTarget
	exitCh            chan struct{} // closed when the tab is closed or detached
	navigationCh      chan struct{} // load events
	closed            int32
	reason            atomic.Value // why the tab went away
	navigationTimeout time.Duration
}

// evaluations in the page give up after this many milliseconds
const evalTimeoutMillis = 5000

var _ driverk.ProtocolClient = (*Tab)(nil)
var _ driverk.Navigator = (*Tab)(nil)

// NewTab opens a new target in the browser g is connected to
func NewTab(ctx context.Context, g *gcd.Gcd) (*Tab, error) {
	target, err := g.NewTab()
	if err != nil {
		return nil, &driverk.ProtocolErr{Command: "new tab", Err: err}
	}

	t := &Tab{
		id:                driverk.GetBridgeID(),
		g:                 g,
		t:                 target,
		exitCh:            make(chan struct{}),
		navigationCh:      make(chan struct{}, 1),
		navigationTimeout: 30 * time.Second,
	}
	t.subscribe(ctx)
	return t, nil
}

// ID of this tab
func (t *Tab) ID() int64 {
	return t.id
}

// SetNavigationTimeout bounds Navigate, default is 30 seconds
func (t *Tab) SetNavigationTimeout(timeout time.Duration) {
	t.navigationTimeout = timeout
}

func (t *Tab) subscribe(ctx context.Context) {
	t.t.DOM.Enable()
	t.t.Inspector.Enable()
	t.t.Page.Enable()

	t.t.Subscribe("Inspector.targetCrashed", func(target *gcd.ChromeTarget, payload []byte) {
		log.Ctx(ctx).Warn().Int64("tab_id", t.id).Msg("tab crashed")
		t.shutdown("crashed")
	})

	t.t.Subscribe("Inspector.detached", func(target *gcd.ChromeTarget, payload []byte) {
		header := &gcdapi.InspectorDetachedEvent{}
		reason := "detached"
		if err := json.Unmarshal(payload, header); err == nil && header.Params.Reason != "" {
			reason = header.Params.Reason
		}
		log.Ctx(ctx).Warn().Int64("tab_id", t.id).Str("reason", reason).Msg("tab detached")
		t.shutdown(reason)
	})

	t.t.Subscribe("Page.loadEventFired", func(target *gcd.ChromeTarget, payload []byte) {
		select {
		case t.navigationCh <- struct{}{}:
		default:
		}
	})
}

// shutdown marks the tab unusable, later calls fail with ErrSessionClosed
func (t *Tab) shutdown(reason string) bool {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return false
	}
	t.reason.Store(reason)
	close(t.exitCh)
	return true
}

// IsClosed answers if the tab was closed or went away
func (t *Tab) IsClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

// Reason the tab is closed, empty while open
func (t *Tab) Reason() string {
	if r, ok := t.reason.Load().(string); ok {
		return r
	}
	return ""
}

// Close the tab in the browser
func (t *Tab) Close(ctx context.Context) error {
	if !t.shutdown("closed") {
		return nil
	}
	if err := t.g.CloseTab(t.t); err != nil {
		return errors.Wrap(err, "closing tab")
	}
	return nil
}

// Navigate to url and wait for the load event
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if t.IsClosed() {
		return driverk.ErrSessionClosed
	}
	// drop a load event left over from an earlier navigation
	select {
	case <-t.navigationCh:
	default:
	}

	navParams := &gcdapi.PageNavigateParams{Url: url, TransitionType: "typed"}
	_, _, errText, err := t.t.Page.NavigateWithParams(navParams)
	if err != nil {
		return t.protocolErr("navigate", err)
	}
	if errText != "" {
		return errors.Wrap(ErrNavigating, errText)
	}

	timer := time.NewTimer(t.navigationTimeout)
	defer timer.Stop()
	select {
	case <-t.navigationCh:
		return nil
	case <-timer.C:
		return ErrNavigationTimedOut
	case <-ctx.Done():
		return ctx.Err()
	case <-t.exitCh:
		return driverk.ErrSessionClosed
	}
}

// FindElements matching sel, under scope if it is not nil
func (t *Tab) FindElements(ctx context.Context, sel driverk.Selector, scope *driverk.ElementHandle) ([]driverk.ElementHandle, error) {
	if sel.By == driverk.ByClassName && driverk.BadClassName(sel.Value) {
		return nil, &driverk.ProtocolErr{Command: "find elements", Code: "invalid argument", Message: "class name " + strconv.Quote(sel.Value) + " must be a single class"}
	}
	args := map[string]interface{}{"by": sel.By.String(), "value": sel.Value}
	scopeID := ""
	if scope != nil {
		scopeID = scope.ID
		args["scope"] = scope.ID
	}

	result, err := t.call(ctx, "find elements", scopeID, "find", args)
	if err != nil {
		return nil, err
	}

	ids := result.Array()
	handles := make([]driverk.ElementHandle, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, driverk.ElementHandle{ID: id.String()})
	}
	return handles, nil
}

// Attribute of h, ok is false when the attribute is not present
func (t *Tab) Attribute(ctx context.Context, h driverk.ElementHandle, name string) (string, bool, error) {
	result, err := t.call(ctx, "get element attribute", h.ID, "attribute", map[string]interface{}{"id": h.ID, "name": name})
	if err != nil {
		return "", false, err
	}
	if result.Type == gjson.Null {
		return "", false, nil
	}
	return result.String(), true, nil
}

// IsDisplayed of h
func (t *Tab) IsDisplayed(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return t.boolean(ctx, "is element displayed", "displayed", h)
}

// IsEnabled of h
func (t *Tab) IsEnabled(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return t.boolean(ctx, "is element enabled", "enabled", h)
}

// IsClickable of h, computed in the page from its bounding rect and a hit test
func (t *Tab) IsClickable(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return t.boolean(ctx, "is element clickable", "clickable", h)
}

// Text of h as rendered
func (t *Tab) Text(ctx context.Context, h driverk.ElementHandle) (string, error) {
	result, err := t.call(ctx, "get element text", h.ID, "text", map[string]interface{}{"id": h.ID})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// ClassList of h
func (t *Tab) ClassList(ctx context.Context, h driverk.ElementHandle) ([]string, error) {
	result, err := t.call(ctx, "get element classes", h.ID, "classes", map[string]interface{}{"id": h.ID})
	if err != nil {
		return nil, err
	}
	classes := make([]string, 0)
	for _, c := range result.Array() {
		classes = append(classes, c.String())
	}
	return classes, nil
}

func (t *Tab) boolean(ctx context.Context, command, op string, h driverk.ElementHandle) (bool, error) {
	result, err := t.call(ctx, command, h.ID, op, map[string]interface{}{"id": h.ID})
	if err != nil {
		return false, err
	}
	return result.Bool(), nil
}

// call evaluates op in the element registry of the current document
func (t *Tab) call(ctx context.Context, command, id, op string, args map[string]interface{}) (gjson.Result, error) {
	if t.IsClosed() {
		return gjson.Result{}, driverk.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return gjson.Result{}, err
	}

	expression, err := registryCall(op, args)
	if err != nil {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "encoding arguments", Err: err}
	}

	params := &gcdapi.RuntimeEvaluateParams{
		Expression:            expression,
		ObjectGroup:           "driverk",
		IncludeCommandLineAPI: false,
		Silent:                true,
		ReturnByValue:         true,
		GeneratePreview:       false,
		UserGesture:           false,
		AwaitPromise:          false,
		ThrowOnSideEffect:     false,
		Timeout:               evalTimeoutMillis,
	}
	r, exp, err := t.t.Runtime.EvaluateWithParams(params)
	if err != nil {
		return gjson.Result{}, t.protocolErr(command, err)
	}
	if exp != nil {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Code: "javascript error", Message: exp.Text}
	}
	if r == nil {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "empty evaluation result"}
	}
	raw, ok := r.Value.(string)
	if !ok {
		return gjson.Result{}, &driverk.ProtocolErr{Command: command, Message: "unexpected evaluation result"}
	}
	return decodeResult(command, id, raw)
}

func (t *Tab) protocolErr(command string, err error) error {
	if t.IsClosed() {
		return driverk.ErrSessionClosed
	}
	return &driverk.ProtocolErr{Command: command, Err: err}
}
