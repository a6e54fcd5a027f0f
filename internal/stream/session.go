package stream

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns an opaque client-generated session identifier of the
// form <unix-millis>-<8 hex chars>.
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// SessionURL embeds the session ID as the last path segment of base.
func SessionURL(base, sessionID string) string {
	if sessionID == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(sessionID)
}
