package observe

import (
	"context"
	"testing"
)

func TestCorrelationID_NoSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLogger_WithSpan(t *testing.T) {
	testSetup(t)
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()

	if CorrelationID(ctx) == "" {
		t.Fatal("span has no trace ID")
	}
	if Logger(ctx) == nil || Logger(context.Background()) == nil {
		t.Error("Logger returned nil")
	}
}
