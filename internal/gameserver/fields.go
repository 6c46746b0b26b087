package gameserver

import (
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
)

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q is required", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q must be a string", name)
	}
	return s.StringValue, nil
}

func optionalString(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func addressField(req *structpb.Struct, name string) (authority.Address, error) {
	s, err := stringField(req, name)
	if err != nil {
		return authority.Zero, err
	}
	return authority.Parse(s)
}

// uint64Field reads a non-negative integer given either as a number or a
// decimal string. ok is false when the field is absent.
func uint64Field(req *structpb.Struct, name string) (v uint64, ok bool, err error) {
	val, present := req.GetFields()[name]
	if !present {
		return 0, false, nil
	}
	switch k := val.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, true, arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q must be a non-negative integer", name)
		}
		return uint64(n), true, nil
	case *structpb.Value_StringValue:
		u, perr := strconv.ParseUint(k.StringValue, 10, 64)
		if perr != nil {
			return 0, true, arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q: %v", name, perr)
		}
		return u, true, nil
	default:
		return 0, true, arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q must be a number", name)
	}
}

func boolField(req *structpb.Struct, name string, def bool) bool {
	v, ok := req.GetFields()[name]
	if !ok {
		return def
	}
	return v.GetBoolValue()
}

func response(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, arenaerr.Wrap(arenaerr.KindUnknown, "", err, "encoding response")
	}
	return s, nil
}
