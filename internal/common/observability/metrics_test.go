package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoop_RecordsWithoutPanicking(t *testing.T) {
	o := NewNoop()

	ctx, span := o.StartSpan(context.Background(), "chat.turn", attribute.String("tripId", "t-1"))
	defer span.End()

	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "completed")
		o.RecordJobDuration(ctx, time.Second, "completed")
		o.RecordTurnDuration(ctx, time.Second, "collecting")
		o.Shutdown()
	})
}
