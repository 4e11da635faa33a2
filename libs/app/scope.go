package app

import (
	"errors"
	"net/http"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// ConversationParam is the query parameter carrying a conversation id
	ConversationParam = "cid"
	// ConversationHeader carries a conversation id when no query parameter is set
	ConversationHeader = "X-Conversation-Id"
	// RequestIDHeader echoes the id of the request scope instance
	RequestIDHeader = "X-Request-Id"
)

// ScopeMiddleware activates the request, session and conversation scopes for
// every request and ends them once the handler chain returned. Session scoped
// instances live in the attributes of the HTTP session.
func ScopeMiddleware(container *core.Container, sessions *SessionManager, lifecycle *LifecycleManager) gin.HandlerFunc {
	cookieName := container.Config().Session.CookieName
	return func(c *gin.Context) {
		logger := container.Logger()
		ctx := c.Request.Context()

		requestID := uuid.NewString()
		ctx, err := container.BeginScope(ctx, core.RequestScoped, requestID)
		if err != nil {
			abortWithError(c, lifecycle, http.StatusInternalServerError, err)
			return
		}
		defer func() {
			if err := container.EndScope(core.RequestScoped, requestID); err != nil {
				logger.Debug("RequestScopeEnd", "failed to end request scope", zap.Error(err))
			}
		}()
		c.Header(RequestIDHeader, requestID)

		session := currentSession(c, sessions, cookieName)
		ctx, err = container.BeginScope(ctx, core.SessionScoped, session.ID(), core.WithBeanStore(sessions.BeanStore(session)))
		if err != nil {
			abortWithError(c, lifecycle, http.StatusInternalServerError, err)
			return
		}

		cid := c.Query(ConversationParam)
		if cid == "" {
			cid = c.GetHeader(ConversationHeader)
		}
		ctx, _, err = container.Conversations().Activate(ctx, session.ID(), cid)
		if err != nil {
			abortWithError(c, lifecycle, conversationStatus(err), err)
			return
		}
		defer func() {
			if err := container.Conversations().Deactivate(ctx); err != nil {
				logger.Debug("ConversationDeactivate", "failed to deactivate conversation", zap.Error(err))
			}
		}()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func currentSession(c *gin.Context, sessions *SessionManager, cookieName string) *Session {
	if id, err := c.Cookie(cookieName); err == nil && id != "" {
		if s, ok := sessions.Get(id); ok {
			return s
		}
	}
	s := sessions.Create()
	c.SetCookie(cookieName, s.ID(), 0, "/", "", false, true)
	return s
}

func conversationStatus(err error) int {
	var busy *core.BusyConversationError
	var missing *core.NonexistentConversationError
	switch {
	case errors.As(err, &busy):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, lifecycle *LifecycleManager, status int, err error) {
	_ = c.Error(err)
	if lifecycle != nil {
		lifecycle.ExecuteOnError(c, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// EndSession destroys the session scoped instances and the conversations of
// a session. It is the SessionManager callback of a DoffApp.
func EndSession(container *core.Container, id string) error {
	return multierr.Append(
		container.Conversations().EndSession(id),
		container.EndScope(core.SessionScoped, id),
	)
}
