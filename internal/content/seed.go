package content

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// Inventory lists the topics that already have logged content.
type Inventory interface {
	LatestPerTopic(ctx context.Context) (map[string]string, error)
}

// Seed writes defaults through the resolver, in topic order, but only when
// inv holds no content for any topic. It returns the number of topics
// written. A topic whose log write failed is reported in the error; the
// other tiers stay best-effort as in Write.
func Seed(ctx context.Context, r *Resolver, inv Inventory, defaults map[string]string) (int, error) {
	existing, err := inv.LatestPerTopic(ctx)
	if err != nil {
		return 0, fmt.Errorf("list logged content: %w", err)
	}
	if len(existing) > 0 {
		r.logger.Info().Int("topics", len(existing)).Msg("content already present, not seeding")
		return 0, nil
	}

	topics := make([]string, 0, len(defaults))
	for topicID := range defaults {
		topics = append(topics, topicID)
	}
	sort.Strings(topics)

	var (
		written int
		errs    *multierror.Error
	)
	for _, topicID := range topics {
		result, err := r.Write(ctx, topicID, defaults[topicID])
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("seed %s: %w", topicID, err))
			continue
		}
		if r.log != nil && !result.OK(TierLog) {
			errs = multierror.Append(errs, fmt.Errorf("seed %s: %w", topicID, result.Tiers[TierLog]))
			continue
		}
		written++
	}
	r.logger.Info().Int("topics", written).Msg("seeded default content")
	return written, errs.ErrorOrNil()
}
