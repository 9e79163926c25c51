package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries the correlation ids minted or propagated by the
// trace-context middleware: X-Trace-Id groups every call made for one
// document run, X-Request-Id is unique per HTTP request.
type TraceData struct {
	TraceID   string
	RequestID string
}

// LogFields renders the ids as logger key-value pairs, skipping empties.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	var fields []interface{}
	if td.TraceID != "" {
		fields = append(fields, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		fields = append(fields, "request_id", td.RequestID)
	}
	return fields
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}
