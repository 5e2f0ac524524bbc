package shared

import "context"

// Operator identifies the authenticated admin actor for a request. Token
// verification happens upstream; this engine only consumes the identity and
// role claims forwarded by the gateway.
type Operator struct {
	ID           string
	Capabilities CapabilitySet
}

type contextKey string

const operatorContextKey contextKey = "orgsync.operator"

// ContextWithOperator stores the operator in the context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

// OperatorFromContext retrieves the operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorContextKey).(Operator)
	return op, ok
}
