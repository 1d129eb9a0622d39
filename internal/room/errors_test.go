package room

import (
	"errors"
	"fmt"
	"testing"

	"liveclass-backend/internal/protocol"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrClassNotLive, protocol.CodeClassNotLive},
		{ErrNotAParticipant, protocol.CodeNotAParticipant},
		{ErrForbidden, protocol.CodeForbidden},
		{ErrEmptyMessage, protocol.CodeEmptyMessage},
		{ErrUpstreamUnavailable, protocol.CodeUpstreamUnavailable},
		// Wrapped errors still map through errors.Is.
		{fmt.Errorf("%w: connection refused", ErrUpstreamUnavailable), protocol.CodeUpstreamUnavailable},
		{errors.New("something else"), protocol.CodeBadRequest},
	}

	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
