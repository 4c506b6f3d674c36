package debugfeed

import (
	"errors"
	"fmt"
)

var (
	ErrFeedClosed     = errors.New("feed is closed")
	ErrNotListening   = errors.New("feed is not listening")
	ErrAlreadyStarted = errors.New("feed already started")
)

type ErrClientNotFound struct {
	ClientID string
}

func (e ErrClientNotFound) Error() string {
	return fmt.Sprintf("client %s not found", e.ClientID)
}
