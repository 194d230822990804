package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"gedcom-review/pkg/db"
	"gedcom-review/pkg/record"
)

type contextKey string

const (
	treeContextKey      contextKey = "tree"
	factoriesContextKey contextKey = "factories"
)

// WithFactories returns middleware that builds a fresh record-type factory
// registry for every request and stores it in the request context before
// delegating, overwriting anything a previous registration put there. The
// cache is shared across requests; a nil cache is a wiring error and panics
// at route setup, not per request.
func WithFactories(cache *record.Cache) mux.MiddlewareFunc {
	if cache == nil {
		panic("handlers: factory cache is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), factoriesContextKey, record.NewRegistry(cache))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FactoriesFrom retrieves the request's factory registry, or nil if the
// middleware did not run.
func FactoriesFrom(ctx context.Context) *record.Registry {
	registry, _ := ctx.Value(factoriesContextKey).(*record.Registry)
	return registry
}

// WithTree returns middleware that resolves the {tree} route variable to a
// tree and stores it in the request context. Unknown trees get a 404.
func WithTree(trees db.ITreeStore) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := mux.Vars(r)["tree"]

			tree, err := trees.GetTreeByName(name)
			if err != nil {
				if err == db.ErrTreeNotFound {
					http.Error(w, "Tree not found", http.StatusNotFound)
					return
				}
				log.Printf("Error resolving tree %q: %v", name, err)
				http.Error(w, "Failed to resolve tree", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), treeContextKey, tree)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TreeFrom retrieves the request's current tree, or nil if the middleware
// did not run.
func TreeFrom(ctx context.Context) *db.Tree {
	tree, _ := ctx.Value(treeContextKey).(*db.Tree)
	return tree
}
