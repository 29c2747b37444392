// Package service exposes the ledger engine over Connect. Handlers resolve the
// calling member from the request context, validate the message and translate
// engine errors into Connect codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/pkg/api"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// actor returns the authenticated member or an Unauthenticated error.
func actor(ctx context.Context) (string, error) {
	memberID := middleware.GetMemberID(ctx)
	if memberID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("authentication required"))
	}
	return memberID, nil
}

// check validates msg against its struct tags.
func check(msg any) error {
	if err := validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = fmt.Errorf("%s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return toConnectError(errs.Newf(errs.ErrInvalid, "%v", err))
	}
	return nil
}

// toConnectError maps an engine error to a Connect error carrying the error
// kind in the Error-Kind header. Infrastructure failures are logged and
// reported without their cause.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	kind := errs.KindOf(err)
	var code connect.Code
	switch {
	case errors.Is(err, errs.ErrInvalid):
		code = connect.CodeInvalidArgument
	case errors.Is(err, errs.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, errs.ErrInsufficientFunds):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, errs.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, errs.ErrInvalidTransition):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, errs.ErrConflict):
		code = connect.CodeAborted
	default:
		slog.Error("Infrastructure failure", "error", err)
		code = connect.CodeUnavailable
		err = errors.New("service temporarily unavailable")
	}

	ce = connect.NewError(code, err)
	ce.Meta().Set(api.ErrorKindHeader, kind)
	return ce
}
