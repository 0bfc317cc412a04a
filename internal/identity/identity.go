// Package identity reconciles visitors that were seen with more than one
// authenticated user id.
package identity

import (
	"time"

	"go.uber.org/zap"

	"github.com/eventstar/eventstar/pkg/types"
)

// Pairing is one observation of a visitor paired with a user id.
type Pairing struct {
	UserID string
	Time   time.Time

	// Index is the row position in the input batch
	Index int
}

// Policy picks the authoritative user id for a conflicted visitor. pairings
// is non-empty and in input order.
type Policy func(pairings []Pairing) string

// LatestPairingWins keeps the user id of the most recent event. Events with
// equal timestamps are ordered by input position, so the later row wins.
//
// This is not necessarily the correct identity: a shared device that was
// last used by a different account will be attributed to that account.
func LatestPairingWins(pairings []Pairing) string {
	latest := pairings[0]
	for _, p := range pairings[1:] {
		if !p.Time.Before(latest.Time) {
			latest = p
		}
	}
	return latest.UserID
}

// Result is the outcome of a reconciliation pass.
type Result struct {
	Events []types.ReconciledEvent

	// Deleted counts rows removed because their user id lost to the policy
	Deleted int

	// ConflictedVisitors lists visitors with more than one distinct user id,
	// in first-seen order
	ConflictedVisitors []string
}

// Reconciler enforces one user id per visitor.
type Reconciler struct {
	policy Policy
	logger *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPolicy overrides the conflict resolution policy.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Reconciler using LatestPairingWins.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		policy: LatestPairingWins,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type visitorState struct {
	pairings []Pairing
	distinct map[string]struct{}
}

// Reconcile drops rows of conflicted visitors whose user id differs from the
// one chosen by the policy. Rows without a user id, rows without a visitor id
// and rows of visitors with a single user id are kept. Input order is preserved.
func (r *Reconciler) Reconcile(rows []types.CleanedEvent) Result {
	visitors := make(map[string]*visitorState)
	var order []string

	for i, row := range rows {
		if !row.HasVisitor() || !row.UserID.Present() {
			continue
		}
		st, ok := visitors[row.VisitorID]
		if !ok {
			st = &visitorState{distinct: make(map[string]struct{})}
			visitors[row.VisitorID] = st
			order = append(order, row.VisitorID)
		}
		st.pairings = append(st.pairings, Pairing{UserID: row.UserID.Value, Time: row.Time, Index: i})
		st.distinct[row.UserID.Value] = struct{}{}
	}

	winners := make(map[string]string)
	var conflicted []string
	for _, visitor := range order {
		st := visitors[visitor]
		if len(st.distinct) < 2 {
			continue
		}
		conflicted = append(conflicted, visitor)
		winners[visitor] = r.policy(st.pairings)
	}

	res := Result{
		Events:             make([]types.ReconciledEvent, 0, len(rows)),
		ConflictedVisitors: conflicted,
	}
	for _, row := range rows {
		if winner, ok := winners[row.VisitorID]; ok && row.UserID.Present() && row.UserID.Value != winner {
			res.Deleted++
			continue
		}
		res.Events = append(res.Events, types.ReconciledEvent(row))
	}

	if res.Deleted > 0 {
		r.logger.Warn("identity: deleted rows with conflicting user ids",
			zap.Int("deleted", res.Deleted),
			zap.Int("conflicted_visitors", len(conflicted)),
		)
	}
	return res
}
