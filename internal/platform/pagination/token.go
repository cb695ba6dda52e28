package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor holds the Firestore StartAfter values the previous page ended on,
// in query order (createdAt, then document ID for the order listing).
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
}

// EncodeToken serialises the cursor into a base64 URL-safe page token.
// Tokens are opaque to clients; listings return them as nextPageToken.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
