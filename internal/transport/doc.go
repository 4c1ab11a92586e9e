// Package transport issues HTTP requests on behalf of virtual users.
//
// The engine never talks to net/http directly. Every virtual user receives a
// Transport at construction, so there is no process-wide client state and
// tests can substitute a fake.
//
// HTTPTransport is the default implementation. It shares one connection pool
// between all virtual users, records per-phase timing through
// net/http/httptrace, and turns failures into a *RequestError carrying an
// ErrorKind that the metrics sink counts by kind.
//
// # Usage
//
//	tr := transport.NewHTTPTransport(transport.DefaultConfig())
//	resp, err := tr.Do(ctx, &transport.Request{Method: "GET", URL: "https://example.com/health"})
//	if err != nil {
//		var reqErr *transport.RequestError
//		if errors.As(err, &reqErr) {
//			fmt.Println(reqErr.Kind)
//		}
//	}
package transport
