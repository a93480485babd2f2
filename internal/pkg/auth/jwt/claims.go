package jwt

import "github.com/golang-jwt/jwt"

// Claims defines the structure of the JSON Web Token (JWT) claims shared between the
// HTTP login flow and the real-time chat gateway. A token issued at login carries the
// user's identity and role, which the chat core uses for per-case authorization.
type Claims struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the unique identifier of the authenticated user.
	UserID string `json:"userId"`

	// Username is the display name of the authenticated user.
	Username string `json:"username"`

	// Role is the account type of the user ("client", "lawyer", or "admin"), used to
	// apply the case access rule on join and send operations.
	Role string `json:"role"`
}
