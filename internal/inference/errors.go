// Package inference runs a batch of base64 images through the OCR engine.
// Both transports share it.
package inference

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a batch failure
type Kind int

const (
	// KindInput means the request carried no usable image list
	KindInput Kind = iota
	// KindDecode means an image could not be decoded
	KindDecode
	// KindInference means the engine failed on a decoded image
	KindInference
	// KindInternal covers everything else, such as engine construction failure or a panic
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindDecode:
		return "decode"
	case KindInference:
		return "inference"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ErrNoImages is reported when the image list is absent or empty
var ErrNoImages = errors.New("No images provided")

// Error is a failed batch. Image is the zero-based position of the failing image,
// or -1 when the failure is not tied to one image.
type Error struct {
	Kind  Kind
	Image int
	Err   error
	Trace string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDecode, KindInference:
		return fmt.Sprintf("Image %d processing failed: %s", e.Image+1, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsImageError reports whether the failure belongs to a single image
func (e *Error) IsImageError() bool {
	return e.Kind == KindDecode || e.Kind == KindInference
}

func inputError(err error) *Error {
	return &Error{Kind: KindInput, Image: -1, Err: err}
}

func imageError(kind Kind, index int, err error) *Error {
	return &Error{Kind: kind, Image: index, Err: err}
}

// internalError wraps err with the chain of wrapped messages as its trace
func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Image: -1, Err: err, Trace: errorChain(err)}
}

func panicError(recovered any, stack []byte) *Error {
	return &Error{
		Kind:  KindInternal,
		Image: -1,
		Err:   fmt.Errorf("panic: %v", recovered),
		Trace: string(stack),
	}
}

func errorChain(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return strings.Join(lines, "\n")
}

// AsError converts any error into *Error, treating unknown errors as internal
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
