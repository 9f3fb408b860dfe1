package banking

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// OAuthState is round-tripped through the aggregator redirect so the callback
// knows which child started the flow. It is encoded, not signed.
type OAuthState struct {
	KidID     string `json:"kidId"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeState returns base64(JSON{kidId, timestamp}) with timestamp in unix millis.
func EncodeState(kidID string, now time.Time) string {
	payload, _ := json.Marshal(OAuthState{KidID: kidID, Timestamp: now.UnixMilli()})
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeState reverses EncodeState. Anything that does not decode to a
// payload with a kid id yields ErrInvalidState.
func DecodeState(state string) (*OAuthState, error) {
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return nil, ErrInvalidState
	}

	var decoded OAuthState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, ErrInvalidState
	}
	if decoded.KidID == "" {
		return nil, ErrInvalidState
	}

	return &decoded, nil
}
