package authapi

// deniedResponse is the 403 body of /auth. UserID is null when the token was not resolved.
type deniedResponse struct {
	Error   string  `json:"error"`
	Reason  string  `json:"reason"`
	Message string  `json:"message"`
	UserID  *string `json:"user_id"`
}

type invalidResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type unavailableResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type unauthorizedResponse struct {
	Error string `json:"error"`
}

type rateLimitedResponse struct {
	Error string `json:"error"`
}

type cleanupResponse struct {
	Cleaned int64 `json:"cleaned"`
}
