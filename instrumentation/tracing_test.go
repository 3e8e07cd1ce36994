package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newRecordedSpan returns a live span and a function that ends it and
// returns the recorded snapshot.
func newRecordedSpan(t *testing.T) (trace.Span, func() tracetest.SpanStub) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "test-span")

	return span, func() tracetest.SpanStub {
		span.End()
		spans := recorder.Ended()
		if len(spans) != 1 {
			t.Fatalf("recorded %d spans, want 1", len(spans))
		}
		return tracetest.SpanStubFromReadOnlySpan(spans[0])
	}
}

func TestRecordError(t *testing.T) {
	span, done := newRecordedSpan(t)

	RecordError(span, errors.New("exchange failed"))

	stub := done()
	if stub.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", stub.Status.Code)
	}
	if stub.Status.Description != "exchange failed" {
		t.Errorf("description = %q, want %q", stub.Status.Description, "exchange failed")
	}
	if len(stub.Events) == 0 {
		t.Error("error event not recorded")
	}
}

func TestRecordError_NilSafe(t *testing.T) {
	RecordError(nil, errors.New("ignored"))

	span, done := newRecordedSpan(t)
	RecordError(span, nil)
	stub := done()
	if stub.Status.Code == codes.Error {
		t.Error("nil error should not set error status")
	}
}

func TestSetSpanSuccess(t *testing.T) {
	SetSpanSuccess(nil)

	span, done := newRecordedSpan(t)
	SetSpanSuccess(span)
	if stub := done(); stub.Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", stub.Status.Code)
	}
}

func TestSetSpanError(t *testing.T) {
	SetSpanError(nil, "ignored")

	span, done := newRecordedSpan(t)
	SetSpanError(span, "mapping lookup failed")
	stub := done()
	if stub.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", stub.Status.Code)
	}
	if stub.Status.Description != "mapping lookup failed" {
		t.Errorf("description = %q", stub.Status.Description)
	}
}

func hasAttribute(stub tracetest.SpanStub, key, value string) bool {
	for _, attr := range stub.Attributes {
		if string(attr.Key) == key && attr.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestAddOAuthFlowAttributes(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddOAuthFlowAttributes(span, "client_abc", "alice@example.com", "openid email")

	stub := done()
	if !hasAttribute(stub, AttrClientID, "client_abc") {
		t.Error("client ID attribute missing")
	}
	if !hasAttribute(stub, AttrIdentity, "alice@example.com") {
		t.Error("identity attribute missing")
	}
	if !hasAttribute(stub, AttrScope, "openid email") {
		t.Error("scope attribute missing")
	}
}

func TestAddOAuthFlowAttributes_SkipsEmpty(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddOAuthFlowAttributes(span, "client_abc", "", "")

	stub := done()
	for _, attr := range stub.Attributes {
		if string(attr.Key) == AttrIdentity || string(attr.Key) == AttrScope {
			t.Errorf("empty value recorded for %s", attr.Key)
		}
	}
}

func TestAddPKCEAttributes(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddPKCEAttributes(span, "S256")

	if stub := done(); !hasAttribute(stub, AttrPKCEMethod, "S256") {
		t.Error("PKCE method attribute missing")
	}
}

func TestAddProviderAttributes(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddProviderAttributes(span, "oidc", "exchange_code")

	stub := done()
	if !hasAttribute(stub, AttrProviderName, "oidc") {
		t.Error("provider name attribute missing")
	}
	if !hasAttribute(stub, AttrProviderOperation, "exchange_code") {
		t.Error("provider operation attribute missing")
	}
}

func TestAddHTTPAttributes(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddHTTPAttributes(span, "POST", "/oauth/token", 200)

	stub := done()
	if !hasAttribute(stub, AttrHTTPMethod, "POST") {
		t.Error("HTTP method attribute missing")
	}
	if !hasAttribute(stub, AttrHTTPEndpoint, "/oauth/token") {
		t.Error("HTTP endpoint attribute missing")
	}
	found := false
	for _, attr := range stub.Attributes {
		if string(attr.Key) == AttrHTTPStatusCode && attr.Value.AsInt64() == 200 {
			found = true
		}
	}
	if !found {
		t.Error("HTTP status code attribute missing")
	}
}

func TestAddSecurityAttributes(t *testing.T) {
	span, done := newRecordedSpan(t)

	AddSecurityAttributes(span, "203.0.113.7")

	if stub := done(); !hasAttribute(stub, AttrClientIP, "203.0.113.7") {
		t.Error("client IP attribute missing")
	}

	span, done = newRecordedSpan(t)
	AddSecurityAttributes(span, "")
	if stub := done(); hasAttribute(stub, AttrClientIP, "") {
		t.Error("empty client IP should not be recorded")
	}
}

func TestSetSpanAttributes(t *testing.T) {
	SetSpanAttributes(nil, attribute.String("ignored", "x"))

	span, done := newRecordedSpan(t)
	SetSpanAttributes(span, attribute.String("custom.key", "custom-value"))
	if stub := done(); !hasAttribute(stub, "custom.key", "custom-value") {
		t.Error("custom attribute missing")
	}
}
