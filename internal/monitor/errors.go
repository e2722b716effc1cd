package monitor

import "fmt"

// FetchError is returned when a method could not retrieve the page
// (network, timeout or non-2xx status). It degrades the method to absent.
type FetchError struct {
	Method Method
	// StatusCode is set when the server answered with a non-2xx status.
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Method, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.Method, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError is returned when content was retrieved but indicators could not
// be extracted. Consensus treats it like a FetchError.
type ParseError struct {
	Method Method
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Method, e.Reason)
}

// ChannelSendError is recorded when one alert channel failed to deliver.
type ChannelSendError struct {
	Channel string
	Cause   error
}

func (e *ChannelSendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Channel, e.Cause)
}

func (e *ChannelSendError) Unwrap() error { return e.Cause }

// PersistenceError is returned when a state, history or alert write failed.
// It aborts the record step for the current cycle only.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
