// Package reconcile fetches complete resource collections from API.ai and
// replays stored snapshots back onto the live service.
package reconcile

import (
	"context"

	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

//go:generate mockgen -source=remote.go -destination=../mocks/mock_remote.go -package=mocks

// Remote is the subset of the API.ai REST API the fetcher and reconciler use.
// *client.Client implements it.
type Remote interface {
	List(ctx context.Context, kind resource.Kind) ([]map[string]any, error)
	Get(ctx context.Context, kind resource.Kind, id string) (map[string]any, error)
	Create(ctx context.Context, kind resource.Kind, payload map[string]any) (string, error)
	Update(ctx context.Context, kind resource.Kind, id string, payload map[string]any) error
	Delete(ctx context.Context, kind resource.Kind, id string) error
}
