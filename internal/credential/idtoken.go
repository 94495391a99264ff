package credential

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Claims holds display metadata read from an OAuth id token.
type Claims struct {
	Email     string
	PlanType  string
	AccountID string
}

// idTokenPayload picks the email and the namespaced ChatGPT account claim.
type idTokenPayload struct {
	Email    string `json:"email"`
	AuthInfo struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
		ChatGPTPlanType  string `json:"chatgpt_plan_type"`
	} `json:"https://api.openai.com/auth"`
}

// ParseIDTokenClaims decodes the payload segment of a three-part id token.
//
// The signature is NOT verified. The result is for display only and must never
// be used to make an authorization decision. A malformed token yields zero Claims.
func ParseIDTokenClaims(idToken string) Claims {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return Claims{}
	}

	// Tokens are unpadded base64url, but tolerate padded input.
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}
	}

	var payload idTokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Claims{}
	}

	return Claims{
		Email:     payload.Email,
		PlanType:  payload.AuthInfo.ChatGPTPlanType,
		AccountID: payload.AuthInfo.ChatGPTAccountID,
	}
}
