package core

// Scope is the lifetime policy of a bean
type Scope string

const (
	// Dependent instances belong to the object they are injected into
	Dependent Scope = "Dependent"
	// Singleton is a pseudo-scope: one instance, injected without a client proxy
	Singleton Scope = "Singleton"
	// ApplicationScoped instances live as long as the container
	ApplicationScoped Scope = "ApplicationScoped"
	// RequestScoped instances live for one request
	RequestScoped Scope = "RequestScoped"
	// SessionScoped instances live for one HTTP session
	SessionScoped Scope = "SessionScoped"
	// ConversationScoped instances live for one conversation within a session
	ConversationScoped Scope = "ConversationScoped"
)

// IsPseudo reports whether instances of the scope are handed out directly
// instead of through a client proxy. Custom scopes report false; the
// container consults the registered ScopeContext for them.
func (s Scope) IsPseudo() bool {
	return s == Dependent || s == Singleton
}

func (s Scope) String() string { return string(s) }
