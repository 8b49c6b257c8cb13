package record

import "fmt"

// MalformedError reports data that violates the record model: a duplicate
// identity key, an unparsable value, a name outside its zone.
type MalformedError struct {
	Key    Key
	Source string
	Reason string
}

func (e *MalformedError) Error() string {
	switch {
	case e.Key == (Key{}):
		return fmt.Sprintf("malformed zone data in %s: %s", e.Source, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("malformed record %s in %s: %s", e.Key, e.Source, e.Reason)
	default:
		return fmt.Sprintf("malformed record %s: %s", e.Key, e.Reason)
	}
}
