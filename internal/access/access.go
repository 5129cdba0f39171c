// Package access decides whether a principal may read a content object.
package access

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
)

// Everyone is the group every principal belongs to.
const Everyone = "system.Everyone"

// Evaluator answers read-permission questions for objects the principal
// neither created nor was directly shared.
type Evaluator interface {
	HasReadPermission(ctx context.Context, principal string, obj *content.Object) bool
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, principal string, obj *content.Object) bool

func (f EvaluatorFunc) HasReadPermission(ctx context.Context, principal string, obj *content.Object) bool {
	return f(ctx, principal, obj)
}

// Deny is an Evaluator that never grants access.
var Deny Evaluator = EvaluatorFunc(func(context.Context, string, *content.Object) bool { return false })

// Verify reports whether principal may see obj: it is the creator, a direct
// share recipient, or the evaluator grants read permission. A nil evaluator
// grants nothing beyond ownership and direct sharing.
func Verify(ctx context.Context, ev Evaluator, principal string, obj *content.Object) bool {
	if obj == nil || principal == "" {
		return false
	}
	if obj.Creator == principal || obj.SharedWithPrincipal(principal) {
		return true
	}
	if ev == nil {
		return false
	}
	return ev.HasReadPermission(ctx, principal, obj)
}

// Grants is an in-memory ACL. A principal (or a group it belongs to) may be
// granted read access to an object key or to a whole container.
type Grants struct {
	mu      sync.RWMutex
	readers map[string]map[string]struct{} // key or container id -> principals/groups
	groups  map[string]map[string]struct{} // principal -> groups
}

func NewGrants() *Grants {
	return &Grants{
		readers: make(map[string]map[string]struct{}),
		groups:  make(map[string]map[string]struct{}),
	}
}

// Allow grants read access on target (an object key or container id) to
// who (a principal or group).
func (g *Grants) Allow(target, who string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.readers[target]
	if !ok {
		set = make(map[string]struct{})
		g.readers[target] = set
	}
	set[who] = struct{}{}
}

// Revoke removes a grant made by Allow.
func (g *Grants) Revoke(target, who string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.readers[target], who)
}

// Join adds principal to group.
func (g *Grants) Join(principal, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.groups[principal]
	if !ok {
		set = make(map[string]struct{})
		g.groups[principal] = set
	}
	set[group] = struct{}{}
}

func (g *Grants) HasReadPermission(_ context.Context, principal string, obj *content.Object) bool {
	if obj == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, target := range []string{obj.Key, obj.ContainerID} {
		if target == "" {
			continue
		}
		readers := g.readers[target]
		if len(readers) == 0 {
			continue
		}
		if _, ok := readers[principal]; ok {
			return true
		}
		if _, ok := readers[Everyone]; ok {
			return true
		}
		for group := range g.groups[principal] {
			if _, ok := readers[group]; ok {
				return true
			}
		}
	}
	return false
}
