package oidc

import "fmt"

// FetchError is returned for any failed document fetch: transport errors,
// non-2xx responses and undecodable bodies. Detail carries the remote body or
// error text unchanged so it can be shown to an administrator.
type FetchError struct {
	URL        string
	StatusCode int
	Detail     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Detail)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
