package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the tracer scope for spans started by this module.
const instrumentationName = "github.com/onnwee/flightrank"

// DBOperation is the db.operation attribute of a catalog span.
type DBOperation string

// Operations issued against the SQL catalog.
const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
)

// EndFunc ends a span, recording err on it when non-nil.
type EndFunc func(err error)

// StartSpan starts an internal span named name.
//
//	ctx, end := tracing.StartSpan(ctx, "search.run")
//	defer func() { end(err) }()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, EndFunc) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, ender(span)
}

// StartDBSpan starts a client span for a statement against table. The span
// is named "<operation> <table>" and carries db.system, db.operation and
// db.sql.table.
func StartDBSpan(ctx context.Context, system, table string, op DBOperation) (context.Context, EndFunc) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", system),
		attribute.String("db.operation", string(op)),
	}
	name := string(op)
	if table != "" {
		name += " " + table
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	ctx, span := otel.Tracer(instrumentationName+"/catalog").Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, ender(span)
}

func ender(span trace.Span) EndFunc {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent records a named event on the span in ctx, if any.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes annotates the span in ctx, if any.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
