package classifier

import "fmt"

// MalformedEventError rejects a raw event before it reaches the queue.
type MalformedEventError struct {
	Platform string
	Fields   []string
	Err      error
}

func (e *MalformedEventError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("malformed event from %q: invalid fields %v", e.Platform, e.Fields)
	}
	return fmt.Sprintf("malformed event from %q: %v", e.Platform, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
