package auth

// Known OAuth scopes used by the API.
const (
	ScopeTimelogWrite = "timelog:write"
	ScopeTimelogRead  = "timelog:read"
)
