package content

import (
	"github.com/hashicorp/go-multierror"
)

// WriteResult records the outcome of every tier write for one upload.
// A nil error for a tier means the write succeeded.
type WriteResult struct {
	TopicID    string
	RevisionID string
	Tiers      map[Tier]error
	// Registry is the version registry update that follows the log append.
	Registry error
}

func newWriteResult(topicID, revisionID string) WriteResult {
	return WriteResult{
		TopicID:    topicID,
		RevisionID: revisionID,
		Tiers:      make(map[Tier]error, len(Tiers)),
	}
}

// OK reports whether the tier was written.
func (r WriteResult) OK(tier Tier) bool {
	err, attempted := r.Tiers[tier]
	return attempted && err == nil
}

// Succeeded is true when at least one tier holds the content.
func (r WriteResult) Succeeded() bool {
	for _, tier := range Tiers {
		if r.OK(tier) {
			return true
		}
	}
	return false
}

// Failed lists the tiers whose write failed, in priority order.
func (r WriteResult) Failed() []Tier {
	var failed []Tier
	for _, tier := range Tiers {
		if err, ok := r.Tiers[tier]; ok && err != nil {
			failed = append(failed, tier)
		}
	}
	return failed
}

// Err joins every tier failure, or returns nil when all writes succeeded.
func (r WriteResult) Err() error {
	var result *multierror.Error
	for _, tier := range Tiers {
		if err := r.Tiers[tier]; err != nil {
			result = multierror.Append(result, &TierError{Tier: tier, Err: err})
		}
	}
	if r.Registry != nil {
		result = multierror.Append(result, &TierError{Tier: "registry", Err: r.Registry})
	}
	return result.ErrorOrNil()
}

// Summary renders each tier as "ok" or its error text, for API responses.
func (r WriteResult) Summary() map[string]string {
	out := make(map[string]string, len(r.Tiers)+1)
	for tier, err := range r.Tiers {
		out[string(tier)] = statusText(err)
	}
	if _, ok := r.Tiers[TierLog]; ok {
		out["registry"] = statusText(r.Registry)
	}
	return out
}

// DeleteResult records the outcome of removing a topic's content.
type DeleteResult struct {
	TopicID string
	Tiers   map[Tier]error
}

func (r DeleteResult) Err() error {
	var result *multierror.Error
	for _, tier := range Tiers {
		if err := r.Tiers[tier]; err != nil {
			result = multierror.Append(result, &TierError{Tier: tier, Err: err})
		}
	}
	return result.ErrorOrNil()
}

func (r DeleteResult) Summary() map[string]string {
	out := make(map[string]string, len(r.Tiers))
	for tier, err := range r.Tiers {
		out[string(tier)] = statusText(err)
	}
	return out
}

// TierError ties a failure to the tier it came from.
type TierError struct {
	Tier Tier
	Err  error
}

func (e *TierError) Error() string {
	return string(e.Tier) + ": " + e.Err.Error()
}

func (e *TierError) Unwrap() error {
	return e.Err
}

func statusText(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
