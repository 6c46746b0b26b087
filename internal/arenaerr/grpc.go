package arenaerr

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain tags ErrorInfo details attached to gRPC statuses.
const errorDomain = "goldarena"

// GRPCCode maps an error's Kind to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch KindOf(err) {
	case KindAuthorization:
		return codes.PermissionDenied
	case KindState:
		return codes.FailedPrecondition
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// ToStatus converts err into a gRPC status error. Domain errors keep their
// message and carry their Code as an ErrorInfo reason; anything else becomes
// an opaque Internal error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, "an unexpected error occurred")
	}
	st := status.New(GRPCCode(err), err.Error())
	withInfo, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   errorDomain,
		Metadata: e.Metadata,
	})
	if detailErr != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// CodeFromStatus extracts the domain Code from a gRPC status error produced by
// ToStatus, or "" when none is attached.
func CodeFromStatus(err error) Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return Code(info.GetReason())
		}
	}
	return ""
}
