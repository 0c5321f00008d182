package report

import (
	"context"
	"time"

	"gitlab.com/driverk/driverk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gitlab.com/driverk/engine/report"

// span attribute keys
var (
	AttrSession  = attribute.Key("driverk.session")
	AttrElement  = attribute.Key("driverk.element")
	AttrSelector = attribute.Key("driverk.selector")
	AttrMatches  = attribute.Key("driverk.matches")
)

// Option for Instrument
type Option func(c *Client)

// WithTracerProvider uses tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// Client decorates a protocol client with metrics and a span per call
type Client struct {
	inner   driverk.ProtocolClient
	session string
	tracer  trace.Tracer
}

var _ driverk.ProtocolClient = (*Client)(nil)
var _ driverk.Navigator = (*Client)(nil)

// Instrument client, session is attached to every span
func Instrument(client driverk.ProtocolClient, session string, opts ...Option) *Client {
	c := &Client{inner: client, session: session, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap returns the decorated client
func (c *Client) Unwrap() driverk.ProtocolClient {
	return c.inner
}

func (c *Client) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, AttrSession.String(c.session))
	ctx, span := c.tracer.Start(ctx, "driverk."+method, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
	return ctx, span, time.Now()
}

func (c *Client) end(span trace.Span, method string, began time.Time, err error) {
	ProtocolLatency.WithLabelValues(method).Observe(time.Since(began).Seconds())
	ProtocolCalls.WithLabelValues(method, Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FindElements through the inner client
func (c *Client) FindElements(ctx context.Context, sel driverk.Selector, scope *driverk.ElementHandle) ([]driverk.ElementHandle, error) {
	attrs := []attribute.KeyValue{AttrSelector.String(sel.String())}
	if scope != nil {
		attrs = append(attrs, AttrElement.String(scope.ID))
	}
	ctx, span, began := c.start(ctx, "find_elements", attrs...)
	handles, err := c.inner.FindElements(ctx, sel, scope)
	span.SetAttributes(AttrMatches.Int(len(handles)))
	c.end(span, "find_elements", began, err)
	return handles, err
}

// Attribute through the inner client
func (c *Client) Attribute(ctx context.Context, h driverk.ElementHandle, name string) (string, bool, error) {
	ctx, span, began := c.start(ctx, "attribute", AttrElement.String(h.ID), attribute.String("driverk.attribute", name))
	value, ok, err := c.inner.Attribute(ctx, h, name)
	c.end(span, "attribute", began, err)
	return value, ok, err
}

// IsDisplayed through the inner client
func (c *Client) IsDisplayed(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return c.state(ctx, "is_displayed", h, c.inner.IsDisplayed)
}

// IsEnabled through the inner client
func (c *Client) IsEnabled(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return c.state(ctx, "is_enabled", h, c.inner.IsEnabled)
}

// IsClickable through the inner client
func (c *Client) IsClickable(ctx context.Context, h driverk.ElementHandle) (bool, error) {
	return c.state(ctx, "is_clickable", h, c.inner.IsClickable)
}

func (c *Client) state(ctx context.Context, method string, h driverk.ElementHandle, fn func(context.Context, driverk.ElementHandle) (bool, error)) (bool, error) {
	ctx, span, began := c.start(ctx, method, AttrElement.String(h.ID))
	ok, err := fn(ctx, h)
	c.end(span, method, began, err)
	return ok, err
}

// Text through the inner client
func (c *Client) Text(ctx context.Context, h driverk.ElementHandle) (string, error) {
	ctx, span, began := c.start(ctx, "text", AttrElement.String(h.ID))
	text, err := c.inner.Text(ctx, h)
	c.end(span, "text", began, err)
	return text, err
}

// ClassList through the inner client
func (c *Client) ClassList(ctx context.Context, h driverk.ElementHandle) ([]string, error) {
	ctx, span, began := c.start(ctx, "class_list", AttrElement.String(h.ID))
	classes, err := c.inner.ClassList(ctx, h)
	c.end(span, "class_list", began, err)
	return classes, err
}

// Navigate if the inner client can, otherwise a ProtocolErr
func (c *Client) Navigate(ctx context.Context, url string) error {
	nav, ok := c.inner.(driverk.Navigator)
	if !ok {
		return &driverk.ProtocolErr{Command: "navigate", Message: "client does not support navigation"}
	}
	ctx, span, began := c.start(ctx, "navigate", attribute.String("driverk.url", url))
	err := nav.Navigate(ctx, url)
	c.end(span, "navigate", began, err)
	return err
}
