package reply

import (
	"context"
	"fmt"
	"strings"
)

// Mock answers deterministically without any network access.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Reply(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return fmt.Sprintf("Hoi! Je zei: %s", text), nil
}
