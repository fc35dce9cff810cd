package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// FaultKind classifies a failed vendor call.
type FaultKind string

const (
	// FaultTransport covers network, auth, throttling and anything unclassified.
	FaultTransport FaultKind = "transport"
	// FaultNotFound means the referenced resource does not exist.
	FaultNotFound FaultKind = "not_found"
	// FaultMalformed means an expected field was absent from a response.
	FaultMalformed FaultKind = "malformed"
)

// notFoundCodes are vendor error codes that mean "the thing is not there".
var notFoundCodes = map[string]bool{
	"InvalidInstanceID.NotFound":         true,
	"InvalidKeyPair.NotFound":            true,
	"InvalidAMIID.NotFound":              true,
	"InvalidAMIID.Unavailable":           true,
	"InvalidAMIID.Malformed":             true,
	"InvalidNetworkInterfaceID.NotFound": true,
	"InvalidVolume.NotFound":             true,
	"LoadBalancerNotFound":               true,
	"TargetGroupNotFound":                true,
	"NoSuchBucket":                       true,
	"NoSuchBucketPolicy":                 true,
}

// Fault is an error from one vendor call, tagged with its kind.
type Fault struct {
	Kind FaultKind
	Op   string
	Code string // vendor error code, when there was one
	Err  error
}

func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", f.Op, f.Kind, f.Code, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// classify wraps err from the vendor call op into a Fault.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var existing *Fault
	if errors.As(err, &existing) {
		return err
	}

	f := &Fault{Kind: FaultTransport, Op: op, Err: err}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return f
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		f.Code = apiErr.ErrorCode()
		if notFoundCodes[f.Code] {
			f.Kind = FaultNotFound
		}
	}
	return f
}

func notFound(op, format string, args ...any) error {
	return &Fault{Kind: FaultNotFound, Op: op, Err: fmt.Errorf(format, args...)}
}

func malformed(op, format string, args ...any) error {
	return &Fault{Kind: FaultMalformed, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Errors that are not Faults are transport faults.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultTransport
}

// IsRecoverable reports whether err means "absent" rather than "broken".
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	kind := KindOf(err)
	return kind == FaultNotFound || kind == FaultMalformed
}
