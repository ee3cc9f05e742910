package discord

// ProfileUpdate is the PATCH /users/@me body. Only one field is sent per call.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// User is the subset of the current-user object the service reads back.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ErrorResponse is Discord's JSON error body.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
