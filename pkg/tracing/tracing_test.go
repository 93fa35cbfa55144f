package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartEnd_RecordsError(t *testing.T) {
	rec := installRecorder(t)

	_, span := Start(context.Background(), "save", attribute.String("attempt.id", "a1"))
	End(span, errors.New("deadlock"))
	_, ok := Start(context.Background(), "load")
	End(ok, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Error || len(spans[0].Events()) == 0 {
		t.Errorf("failed span status = %v events = %d", spans[0].Status(), len(spans[0].Events()))
	}
	if spans[1].Status().Code == codes.Error {
		t.Error("successful span marked as error")
	}
}

func TestGinMiddleware_NamesSpanByRoute(t *testing.T) {
	rec := installRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/tests/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tests/abc", nil))

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "GET /api/tests/:id" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].Status().Code != codes.Error {
		t.Error("5xx response should mark span as error")
	}
}
