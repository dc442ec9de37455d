package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// ProductReader reloads a catalog record fresh from the backing store.
// Satisfied by *database.Store.
type ProductReader interface {
	GetProductByName(ctx context.Context, name string) (*database.Product, error)
}

// NewProductTampering builds a post-mutation detector for an
// unauthorized out-of-band edit to one catalog record. The record is
// reloaded from the store on every evaluation; an in-process copy could
// be stale relative to an edit made behind the application's back. The
// challenge solves when the description has lost the original link and
// instead carries the configured replacement link.
func NewProductTampering(challengeKey string, reader ProductReader, log *logger.Logger, productName, originalURL, replacementURL string) Detector {
	log = log.WithChallenge(challengeKey)
	replacementAnchor := fmt.Sprintf(`<a href="%s" target="_blank">More...</a>`, replacementURL)

	return Detector{
		Challenge: challengeKey,
		Hook:      PostMutation,
		Strategy:  StrategyStateCorr,
		Evaluate: func(ctx context.Context, ev Event) bool {
			if ev.Mutation == nil {
				return false
			}

			product, err := reader.GetProductByName(ctx, productName)
			if err != nil {
				log.LogError(ctx, err, "detector.product_reload", "product", productName)
				return false
			}

			return !strings.Contains(product.Description, originalURL) &&
				strings.Contains(product.Description, replacementAnchor)
		},
	}
}
