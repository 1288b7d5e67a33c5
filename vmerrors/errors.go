// Package vmerrors defines the typed error taxonomy shared by every layer
// of the VM core: wire-level communication errors, VM-level errors, and
// cryptography errors. Host imports translate some of these into small
// integer protocol codes (see imports.CodeSuccess and its siblings);
// everything else propagates them as typed Go errors.
package vmerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// CommunicationError is returned by the Region protocol (region package)
// when the guest/host memory-exchange convention is violated.
type CommunicationError struct {
	Kind string
	msg  string
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("communication error: %s", e.msg)
}

func RegionLengthTooBig(length, maxLength uint32) error {
	return &CommunicationError{
		Kind: "RegionLengthTooBig",
		msg:  fmt.Sprintf("region length %d exceeds max length %d", length, maxLength),
	}
}

func RegionTooSmall(dataLen, capacity uint32) error {
	return &CommunicationError{
		Kind: "RegionTooSmall",
		msg:  fmt.Sprintf("region too small: data length %d exceeds capacity %d", dataLen, capacity),
	}
}

func RegionOutOfRange(offset, length uint32) error {
	return &CommunicationError{
		Kind: "RegionOutOfRange",
		msg:  fmt.Sprintf("region out of range: offset %d length %d", offset, length),
	}
}

func ZeroAddress() error {
	return &CommunicationError{Kind: "ZeroAddress", msg: "address 0 is reserved and cannot be a valid region"}
}

func DerefErr(msg string) error {
	return &CommunicationError{Kind: "DerefErr", msg: msg}
}

func InvalidUtf8(msg string) error {
	return &CommunicationError{Kind: "InvalidUtf8", msg: msg}
}

// Is reports whether target is a *CommunicationError with the same Kind,
// allowing callers to branch with errors.Is(err, vmerrors.RegionLengthTooBig(0, 0)).
func (e *CommunicationError) Is(target error) bool {
	other, ok := target.(*CommunicationError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// VmError is the top-level error type returned by the Instance and
// Environment layers.
type VmError struct {
	Kind   string
	Msg    string
	Source error
}

func (e *VmError) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Source)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind
}

func (e *VmError) Unwrap() error { return e.Source }

func (e *VmError) Is(target error) bool {
	other, ok := target.(*VmError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func InstantiationErr(msg string) error { return &VmError{Kind: "InstantiationErr", Msg: msg} }
func CompileErr(msg string) error       { return &VmError{Kind: "CompileErr", Msg: msg} }
func ResolveErr(msg string) error       { return &VmError{Kind: "ResolveErr", Msg: msg} }
func RuntimeErr(msg string) error       { return &VmError{Kind: "RuntimeErr", Msg: msg} }
func GasDepletion() error               { return &VmError{Kind: "GasDepletion"} }
func WriteAccessDenied() error {
	return &VmError{Kind: "WriteAccessDenied", Msg: "Storage is read-only"}
}
func UninitializedContextData(name string) error {
	return &VmError{Kind: "UninitializedContextData", Msg: fmt.Sprintf("context data not initialized: %s", name)}
}
func BackendErr(source error) error {
	return &VmError{Kind: "BackendErr", Source: errors.Wrap(source, "backend error")}
}
func CryptoErr(source error) error {
	return &VmError{Kind: "CryptoErr", Source: errors.Wrap(source, "crypto error")}
}
func ParseErr(msg string) error     { return &VmError{Kind: "ParseErr", Msg: msg} }
func SerializeErr(msg string) error { return &VmError{Kind: "SerializeErr", Msg: msg} }
func StaticValidationErr(msg string) error {
	return &VmError{Kind: "StaticValidationErr", Msg: msg}
}

// IsGasDepletion reports whether err is (or wraps) a GasDepletion VmError.
func IsGasDepletion(err error) bool {
	var ve *VmError
	if errors.As(err, &ve) {
		return ve.Kind == "GasDepletion"
	}
	return false
}

// CryptoError is returned by the crypto package's verification helpers.
type CryptoError struct {
	Kind string
	Msg  string
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto error: %s: %s", e.Kind, e.Msg)
}

func (e *CryptoError) Is(target error) bool {
	other, ok := target.(*CryptoError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func MessageTooLong(length int) error {
	return &CryptoError{Kind: "MessageTooLong", Msg: fmt.Sprintf("too large: %d", length)}
}

func InvalidSignatureFormat(msg string) error {
	return &CryptoError{Kind: "InvalidSignatureFormat", Msg: msg}
}

func InvalidPubkeyFormat(msg string) error {
	return &CryptoError{Kind: "InvalidPubkeyFormat", Msg: msg}
}

func BatchErr(msg string) error {
	return &CryptoError{Kind: "BatchErr", Msg: msg}
}

func GenericErr(msg string) error {
	return &CryptoError{Kind: "GenericErr", Msg: msg}
}
