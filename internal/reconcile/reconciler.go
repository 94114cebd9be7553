package reconcile

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Reconciler makes the live collection of a kind match a target snapshot.
//
// Calls are issued sequentially: deletes first, so recreated resources do not
// collide with the names of the ones they replace, then creates, then
// updates. A create rejected with 409 while updates are pending is retried
// once after them, which covers a rename whose old name is reused by a new
// resource. Each call is independent; a rejected call is recorded in the
// Summary and the remaining calls still run.
type Reconciler struct {
	remote  Remote
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler that reads live state through fetcher
// and writes through remote.
func NewReconciler(remote Remote, fetcher *Fetcher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{remote: remote, fetcher: fetcher, logger: logger}
}

// Plan fetches the live collection and computes the calls that would make it
// match target. Nothing is written.
func (r *Reconciler) Plan(ctx context.Context, target resource.Snapshot) (resource.Snapshot, resource.Plan, error) {
	current, err := r.fetcher.FetchAll(ctx, target.Kind)
	if err != nil {
		return resource.Snapshot{}, resource.Plan{}, err
	}
	return current, resource.Diff(current, target), nil
}

// Reconcile fetches live state, then applies the plan. The returned error is
// only set when the fetch fails, in which case no write was attempted.
// Per-resource failures are reported through Summary.Failures.
func (r *Reconciler) Reconcile(ctx context.Context, target resource.Snapshot) (Summary, error) {
	current, plan, err := r.Plan(ctx, target)
	if err != nil {
		return Summary{Kind: target.Kind}, err
	}
	return r.Apply(ctx, current, plan), nil
}

// Apply issues the calls in plan. current supplies display names for deletes.
func (r *Reconciler) Apply(ctx context.Context, current resource.Snapshot, plan resource.Plan) Summary {
	kind := plan.Kind
	sum := Summary{Kind: kind, Plan: plan}

	for _, id := range plan.Delete {
		res, ok := current.Resources[id]
		if !ok {
			res = resource.Resource{ID: id}
		}
		if err := r.remote.Delete(ctx, kind, id); err != nil {
			r.logFailure(OpDelete, kind, res, err)
			sum.fail(OpDelete, res, err)
			continue
		}
		r.logger.Info("deleted", "kind", kind, "id", id, "name", res.Name())
		sum.Deleted = append(sum.Deleted, id)
	}

	// A create can conflict with the old name of a resource that an update
	// is about to rename. Those creates are retried once after the updates.
	var conflicted []resource.Resource
	for _, res := range plan.Create {
		err := r.create(ctx, kind, res, &sum)
		if err == nil {
			continue
		}
		if client.StatusCode(err) == http.StatusConflict && len(plan.Update) > 0 {
			r.logger.Debug("create conflicts, retrying after updates", "kind", kind, "name", res.Name())
			conflicted = append(conflicted, res)
			continue
		}
		r.logFailure(OpCreate, kind, res, err)
		sum.fail(OpCreate, res, err)
	}

	for _, res := range plan.Update {
		if err := r.remote.Update(ctx, kind, res.ID, res.Payload()); err != nil {
			r.logFailure(OpUpdate, kind, res, err)
			sum.fail(OpUpdate, res, err)
			continue
		}
		r.logger.Info("updated", "kind", kind, "id", res.ID, "name", res.Name())
		sum.Updated = append(sum.Updated, res.ID)
	}

	for _, res := range conflicted {
		if err := r.create(ctx, kind, res, &sum); err != nil {
			r.logFailure(OpCreate, kind, res, err)
			sum.fail(OpCreate, res, err)
		}
	}

	return sum
}

func (r *Reconciler) create(ctx context.Context, kind resource.Kind, res resource.Resource, sum *Summary) error {
	newID, err := r.remote.Create(ctx, kind, res.Payload())
	if err != nil {
		return err
	}
	r.logger.Info("created", "kind", kind, "id", newID, "name", res.Name(), "snapshot_id", res.ID)
	sum.Created = append(sum.Created, res.ID)
	return nil
}

func (r *Reconciler) logFailure(op Op, kind resource.Kind, res resource.Resource, err error) {
	r.logger.Warn("restore call failed",
		"op", op,
		"kind", kind,
		"id", res.ID,
		"name", res.Name(),
		"err", err,
	)
}
