package common

import "context"

type ctxKey string

const employeeIDKey ctxKey = "auth/employee-id"

// WithEmployeeID stores the authenticated cashier identifier on the provided context.
func WithEmployeeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, employeeIDKey, id)
}

// EmployeeID extracts the authenticated cashier identifier from the context if present.
func EmployeeID(ctx context.Context) (string, bool) {
	v := ctx.Value(employeeIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
