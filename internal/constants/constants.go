package constants

const (
	// ContextKeyUserID is both the session key and the gin context key for the authenticated user.
	ContextKeyUserID = "user_id"
	// ContextKeyRole holds the caller's role, re-read from the user record on every request.
	ContextKeyRole = "user_role"
	// ContextKeyRequestID holds the per-request correlation id.
	ContextKeyRequestID = "request_id"
	// ContextKeyProject holds the project loaded by RequireProjectAccess.
	ContextKeyProject = "project"

	SessionCookieName = "projecthub_session"
	RequestIDHeader   = "X-Request-ID"

	MinPasswordLength = 8

	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	MaxAIGeneratedTasks = 20
	MaxMessageLength    = 4000
	MessageHistoryLimit = 200

	DefaultNoteTitle = "Untitled Note"
	DefaultNoteColor = "bg-white"

	UpcomingTaskLimit = 5
)
