package session

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

type contextKey string

const retryMarkKey contextKey = "session_retry"

// withRetryMark marks a request as already retried so the transport never
// refreshes twice on its behalf. This is what prevents an infinite loop when
// refresh itself cannot restore validity.
func withRetryMark(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarkKey, true)
}

func isRetryMarked(ctx context.Context) bool {
	marked, _ := ctx.Value(retryMarkKey).(bool)
	return marked
}

// refreshTransport is the interceptor pair: outbound it attaches the held
// access token as a bearer credential, inbound it answers a 401 with one
// coalesced refresh followed by a single replay of the failed request.
type refreshTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	outReq := req.Clone(req.Context())
	if token := t.client.AccessToken(); token != "" {
		outReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetryMarked(req.Context()) {
		return resp, nil
	}

	// Hold on to the failure so it can be propagated untouched if the
	// refresh does not help.
	failureBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(failureBody))

	newToken, refreshErr := t.client.refreshCoalesced(req.Context())
	if refreshErr != nil {
		return resp, nil
	}

	retryReq, ok := rewindRequest(req)
	if !ok {
		return resp, nil
	}
	retryReq.Header.Set("Authorization", "Bearer "+newToken)
	return t.base.RoundTrip(retryReq)
}

// rewindRequest clones the request for its single replay. Requests whose
// body cannot be replayed keep their original failure.
func rewindRequest(req *http.Request) (*http.Request, bool) {
	retryReq := req.Clone(withRetryMark(req.Context()))
	if req.Body == nil || req.GetBody == nil {
		return retryReq, req.Body == nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retryReq.Body = body
	return retryReq, true
}
