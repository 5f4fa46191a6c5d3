package mexc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"signal-core/pkg/exchanges/common"
)

// AvailableBalance returns the available balance of currency in the contract account.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	data, err := c.doSigned(ctx, "account/assets", http.MethodGet, "/api/v1/private/account/assets", nil, nil, common.ErrDataUnavailable)
	if err != nil {
		return 0, err
	}
	for _, asset := range data.Array() {
		if !strings.EqualFold(asset.Get("currency").String(), currency) {
			continue
		}
		avail := asset.Get("availableBalance")
		if !avail.Exists() {
			return 0, fmt.Errorf("mexc assets: %s has no availableBalance: %w", currency, common.ErrDataUnavailable)
		}
		return avail.Float(), nil
	}
	return 0, fmt.Errorf("mexc assets: currency %s not found: %w", currency, common.ErrDataUnavailable)
}
