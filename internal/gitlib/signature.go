package gitlib

import "time"

// Signature is an author or committer identity with a timestamp.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}
