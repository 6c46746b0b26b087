package arenav1

import (
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
)

// Request fields carrying the caller's identity.
const (
	FieldSigner    = "signer"
	FieldSignature = "signature"
	// FieldNonce is a decimal string that must exceed the nonce of the
	// signer's previous accepted request.
	FieldNonce = "nonce"
)

var lastNonce atomic.Uint64

// NextNonce returns a nonce above every nonce this process issued before.
// It follows the wall clock in nanoseconds so a restarted client keeps
// issuing larger values.
func NextNonce() uint64 {
	for {
		prev := lastNonce.Load()
		n := uint64(time.Now().UnixNano())
		if n <= prev {
			n = prev + 1
		}
		if lastNonce.CompareAndSwap(prev, n) {
			return n
		}
	}
}

// KeyHolder can sign messages with the private half of Address.
type KeyHolder interface {
	Address() authority.Address
	Sign(message []byte) []byte
}

// SigningBytes returns the message a caller signs for method: the full method
// name, a newline, then the deterministic encoding of req without its
// signature field. Binding the method stops a signature being replayed
// against a different call.
func SigningBytes(method string, req *structpb.Struct) ([]byte, error) {
	unsigned := proto.Clone(req).(*structpb.Struct)
	if unsigned.Fields != nil {
		delete(unsigned.Fields, FieldSignature)
	}
	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(unsigned)
	if err != nil {
		return nil, arenaerr.Wrap(arenaerr.KindValidation, arenaerr.CodeInvalidArgument, err, "encoding request")
	}
	msg := make([]byte, 0, len(FullMethod(method))+1+len(body))
	msg = append(msg, FullMethod(method)...)
	msg = append(msg, '\n')
	return append(msg, body...), nil
}

// Sign sets req's signer to key's address and its signature over
// SigningBytes. A request without a nonce gets one from NextNonce.
func Sign(method string, req *structpb.Struct, key KeyHolder) error {
	if req.Fields == nil {
		req.Fields = make(map[string]*structpb.Value)
	}
	req.Fields[FieldSigner] = structpb.NewStringValue(key.Address().String())
	if _, ok := req.Fields[FieldNonce]; !ok {
		req.Fields[FieldNonce] = structpb.NewStringValue(strconv.FormatUint(NextNonce(), 10))
	}
	msg, err := SigningBytes(method, req)
	if err != nil {
		return err
	}
	req.Fields[FieldSignature] = structpb.NewStringValue(base58.Encode(key.Sign(msg)))
	return nil
}

// Verify checks req's signature for method.
//
// Postcondition: Returns a signer for the request's signer key carrying the
// request nonce, or an authorization error with CodeInvalidSignature. Whether
// the nonce was used before is checked when the request executes.
func Verify(method string, req *structpb.Struct) (authority.NoncedSigner, error) {
	signer, err := authority.Parse(req.GetFields()[FieldSigner].GetStringValue())
	if err != nil {
		return authority.NoncedSigner{}, arenaerr.Wrap(arenaerr.KindAuthorization, arenaerr.CodeInvalidSignature, err, "request signer")
	}
	nonce, err := nonceField(req)
	if err != nil {
		return authority.NoncedSigner{}, err
	}
	sig, err := base58.Decode(req.GetFields()[FieldSignature].GetStringValue())
	if err != nil {
		return authority.NoncedSigner{}, arenaerr.Wrap(arenaerr.KindAuthorization, arenaerr.CodeInvalidSignature, err, "request signature is not base58")
	}
	msg, err := SigningBytes(method, req)
	if err != nil {
		return authority.NoncedSigner{}, err
	}
	verified, err := authority.VerifySignature(signer, msg, sig)
	if err != nil {
		return authority.NoncedSigner{}, err
	}
	return authority.WithNonce(verified, nonce), nil
}

// nonceField reads the request nonce, given as a decimal string or an
// integral number.
func nonceField(req *structpb.Struct) (uint64, error) {
	var n uint64
	switch k := req.GetFields()[FieldNonce].GetKind().(type) {
	case *structpb.Value_StringValue:
		u, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, arenaerr.Wrap(arenaerr.KindAuthorization, arenaerr.CodeInvalidSignature, err, "request nonce")
		}
		n = u
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > 1<<53 {
			return 0, arenaerr.Authorization(arenaerr.CodeInvalidSignature, "request nonce must be a non-negative integer")
		}
		n = uint64(f)
	}
	if n == 0 {
		return 0, arenaerr.Authorization(arenaerr.CodeInvalidSignature, "request nonce is required")
	}
	return n, nil
}
