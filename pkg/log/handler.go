package log

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// StacktraceAttrKey is the field holding the stack trace of a logged error.
const StacktraceAttrKey = "stacktrace"

func init() {
	zerolog.ErrorStackFieldName = StacktraceAttrKey
	zerolog.ErrorStackMarshaler = extractStacktrace
}

// extractStacktrace returns the stack captured by cockroachdb/errors.WithStack.
// zerolog skips the field when nil is returned.
func extractStacktrace(err error) interface{} {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return nil
}
