// Package predicate holds the visibility checks applied to every raw hit
// before pagination.
package predicate

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
)

// Request carries the caller context a predicate may consult.
type Request struct {
	Principal string
	Site      string
	Query     string
}

// Predicate decides whether a resolved hit is visible to the request.
type Predicate interface {
	Allow(ctx context.Context, item *content.Object, score float64, req Request) bool
}

// Func adapts a function to Predicate.
type Func func(ctx context.Context, item *content.Object, score float64, req Request) bool

func (f Func) Allow(ctx context.Context, item *content.Object, score float64, req Request) bool {
	return f(ctx, item, score, req)
}

// Default allows everything. It is meant for system jobs with no principal.
type Default struct{}

func (Default) Allow(context.Context, *content.Object, float64, Request) bool { return true }

// Accessible allows user-generated content the principal created, was
// shared, or may read through the evaluator. Deleted placeholders are never
// allowed.
type Accessible struct {
	Evaluator access.Evaluator
}

func (a Accessible) Allow(ctx context.Context, item *content.Object, _ float64, req Request) bool {
	if item == nil || item.Deleted {
		return false
	}
	return access.Verify(ctx, a.Evaluator, req.Principal, item)
}

// ContentUnit delegates to the evaluator for static content units.
type ContentUnit struct {
	Evaluator access.Evaluator
}

func (c ContentUnit) Allow(ctx context.Context, item *content.Object, _ float64, req Request) bool {
	if item == nil || c.Evaluator == nil {
		return false
	}
	return c.Evaluator.HasReadPermission(ctx, req.Principal, item)
}

// All allows an item only if every predicate does.
func All(preds ...Predicate) Predicate {
	return Func(func(ctx context.Context, item *content.Object, score float64, req Request) bool {
		for _, p := range preds {
			if !p.Allow(ctx, item, score, req) {
				return false
			}
		}
		return true
	})
}
