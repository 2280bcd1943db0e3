package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/orgforge/divisions/pkg/constants"
)

// UseLogger returns the request-scoped fields logger placed in the context by
// the logging middleware, falling back to the standard logger so callers never
// receive nil.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(constants.LoggerKey)
	if logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.(*logrus.Entry)
}
