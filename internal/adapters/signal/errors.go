package signal

import "fmt"

func errBadPayload(err error) error {
	return fmt.Errorf("bad_payload: %w", err)
}

func errUnknownMethod(method string) error {
	return fmt.Errorf("unknown method %q", method)
}
