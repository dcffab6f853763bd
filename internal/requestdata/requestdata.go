package requestdata

import (
	"context"
)

var requestDataKey = struct{}{}

// RequestData is the per-request attribution carried through the context:
// the correlation id and the acting identity, consumed by audit entries and
// request logs.
type RequestData struct {
	RequestID string
	Actor     string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// Actor returns the acting identity from the context, or fallback when the
// request carried none.
func Actor(ctx context.Context, fallback string) string {
	rd := GetRequestData(ctx)
	if rd == nil || rd.Actor == "" {
		return fallback
	}
	return rd.Actor
}
