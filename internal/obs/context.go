package obs

import "context"

// routePatternKey is the context key storing matched route pattern.
type routePatternKey struct{}

type requestInfoKey struct{}

// requestInfo is shared by pointer so inner middleware can annotate the outer request log.
type requestInfo struct {
	cashierID string
}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// AnnotateCashier attaches the authenticated cashier to the request log line, if one is being recorded.
func AnnotateCashier(ctx context.Context, cashierID string) {
	if ctx == nil {
		return
	}
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.cashierID = cashierID
	}
}
