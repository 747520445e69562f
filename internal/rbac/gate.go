package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aegis-iam/aegis/internal/platform/httpx"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Checker evaluates access decisions.
type Checker interface {
	Check(ctx context.Context, userID, action string) (bool, error)
}

// DecisionRecorder observes the outcome of access decisions.
type DecisionRecorder interface {
	RecordDecision(action string, allowed bool)
}

// Gate is the single reusable guard in front of every protected operation.
type Gate struct {
	checker Checker
	metrics DecisionRecorder
}

// NewGate constructs a Gate. metrics may be nil.
func NewGate(checker Checker, metrics DecisionRecorder) *Gate {
	return &Gate{checker: checker, metrics: metrics}
}

// Require returns nil when the subject holds the action, and forbidden
// otherwise. An unknown or deleted subject is reported as forbidden rather
// than not found so callers cannot probe for account existence.
func (g *Gate) Require(ctx context.Context, subjectID, action string) error {
	allowed, err := g.checker.Check(ctx, subjectID, action)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidInput) {
			g.record(action, false)
			return fmt.Errorf("action %s: %w", action, shared.ErrForbidden)
		}
		return err
	}
	g.record(action, allowed)
	if !allowed {
		return fmt.Errorf("action %s: %w", action, shared.ErrForbidden)
	}
	return nil
}

func (g *Gate) record(action string, allowed bool) {
	if g.metrics != nil {
		g.metrics.RecordDecision(action, allowed)
	}
}

// Middleware wires the gate into HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// Require ensures the current subject holds the given action before the
// wrapped handler runs.
func (m Middleware) Require(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := shared.SubjectFromContext(r.Context())
			if subject == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if err := m.Gate.Require(r.Context(), subject, action); err != nil {
				if !errors.Is(err, shared.ErrForbidden) && m.Logger != nil {
					m.Logger.Error("authorization gate", slog.String("action", action), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
