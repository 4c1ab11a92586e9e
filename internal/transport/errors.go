package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindTimeout    ErrorKind = "timeout"
	KindDNS        ErrorKind = "dns"
	KindRefused    ErrorKind = "connection_refused"
	KindReset      ErrorKind = "connection_reset"
	KindTLS        ErrorKind = "tls"
	KindCanceled   ErrorKind = "canceled"
	KindBodyRead   ErrorKind = "body_read"
	KindNetwork    ErrorKind = "network"
	KindUnknown    ErrorKind = "unknown"
	KindMalformed  ErrorKind = "malformed_request"
	KindUnexpected ErrorKind = "unexpected_eof"
)

// RequestError is returned by a Transport when a request fails after it was
// built. Request errors are recorded and never stop a virtual user.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Classify maps an error from net/http to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}

	if errors.Is(err, ErrMalformedRequest) {
		return KindMalformed
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindReset
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &recordErr) {
		return KindTLS
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindUnexpected
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Error(), "tls:") {
		return KindTLS
	}

	return KindUnknown
}

func newRequestError(err error) *RequestError {
	return &RequestError{Kind: Classify(err), Err: err}
}
