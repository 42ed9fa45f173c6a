package core

import (
	"context"
	"errors"
	"strings"

	"labstock/internal/blob"
	"labstock/pkg/domain"
)

// GenericFailureMessage is shown for store and I/O failures.
const GenericFailureMessage = "The operation could not be completed. Please try again."

// UserMessage converts a service error into a message for the person at the
// keyboard. Validation, not-found, conflict, rule and login errors are
// described; anything else is reported generically. A nil error yields "".
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve domain.ValidationError
		nf domain.NotFoundError
		rv domain.RuleViolationError
	)
	switch {
	case errors.As(err, &ve):
		return "Invalid input: " + ve.Error() + "."
	case errors.As(err, &nf):
		return "No " + strings.ReplaceAll(string(nf.Entity), "_", " ") + " \"" + nf.ID + "\" was found."
	case errors.Is(err, domain.ErrConflict):
		return "Not allowed: " + strings.TrimPrefix(err.Error(), domain.ErrConflict.Error()+": ") + "."
	case errors.As(err, &rv):
		var msgs []string
		for _, v := range rv.Result.Violations {
			if v.Severity == domain.SeverityBlock {
				msgs = append(msgs, v.Message)
			}
		}
		return "Rejected: " + strings.Join(msgs, "; ") + "."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, domain.ErrInactiveUser):
		return "This account is inactive."
	case errors.Is(err, blob.ErrNotFound):
		return "The attachment is missing."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The operation was cancelled."
	}
	return GenericFailureMessage
}
