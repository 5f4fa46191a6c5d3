package mexc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"signal-core/pkg/exchanges/common"
)

// Contract order sides.
const (
	sideOpenLong   = 1
	sideCloseShort = 2
	sideOpenShort  = 3
	sideCloseLong  = 4
)

const orderTypeLimit = 1

// Contract order states.
const (
	stateUninformed  = 1
	stateUncompleted = 2
	stateCompleted   = 3
	stateCancelled   = 4
	stateInvalid     = 5
)

type submitBody struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Vol         float64 `json:"vol"`
	Leverage    int     `json:"leverage,omitempty"`
	Side        int     `json:"side"`
	Type        int     `json:"type"`
	OpenType    int     `json:"openType"`
	ExternalOid string  `json:"externalOid,omitempty"`
}

func contractSide(req common.OrderRequest) int {
	switch {
	case req.Side == common.SideLong && !req.Closing():
		return sideOpenLong
	case req.Side == common.SideShort && !req.Closing():
		return sideOpenShort
	case req.Side == common.SideLong:
		return sideCloseLong
	default:
		return sideCloseShort
	}
}

// SubmitOrder places a limit order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	body := submitBody{
		Symbol:      req.Symbol,
		Price:       req.Price,
		Vol:         req.Qty,
		Leverage:    req.Leverage,
		Side:        contractSide(req),
		Type:        orderTypeLimit,
		OpenType:    int(req.OpenType),
		ExternalOid: req.ClientID,
	}
	data, err := c.doSigned(ctx, "order/submit", http.MethodPost, "/api/v1/private/order/submit", nil, body, common.ErrOrderRejected)
	if err != nil {
		return common.OrderResult{}, err
	}

	// data is either the bare order id or an object carrying it.
	orderID := data.Get("orderId").String()
	if orderID == "" {
		orderID = data.String()
	}
	if orderID == "" {
		return common.OrderResult{}, fmt.Errorf("mexc order/submit: missing order id: %w", common.ErrOrderRejected)
	}
	return common.OrderResult{
		OrderID:  orderID,
		Status:   common.StatusNew,
		ClientID: req.ClientID,
	}, nil
}

// CancelOrder cancels an order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	data, err := c.doSigned(ctx, "order/cancel", http.MethodPost, "/api/v1/private/order/cancel", nil, []string{orderID}, common.ErrOrderRejected)
	if err != nil {
		return err
	}
	for _, item := range data.Array() {
		if code := item.Get("errorCode").Int(); code != 0 {
			return &common.APIError{
				Op:      "order/cancel",
				Code:    code,
				Message: item.Get("errorMsg").String(),
				Kind:    common.ErrOrderRejected,
			}
		}
	}
	return nil
}

// OrderStatus queries fill progress of an order.
func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (common.OrderState, error) {
	data, err := c.doSigned(ctx, "order/get", http.MethodGet, "/api/v1/private/order/get/"+url.PathEscape(orderID), nil, nil, common.ErrDataUnavailable)
	if err != nil {
		return common.OrderState{}, err
	}
	if !data.Get("state").Exists() {
		return common.OrderState{}, fmt.Errorf("mexc order/get %s: missing state: %w", orderID, common.ErrDataUnavailable)
	}
	filled := data.Get("dealVol").Float()
	return common.OrderState{
		OrderID:   orderID,
		Status:    mapState(int(data.Get("state").Int()), filled),
		FilledQty: filled,
		AvgPrice:  data.Get("dealAvgPrice").Float(),
	}, nil
}

func mapState(state int, filled float64) common.OrderStatus {
	switch state {
	case stateUninformed, stateUncompleted:
		if filled > 0 {
			return common.StatusPartial
		}
		return common.StatusNew
	case stateCompleted:
		return common.StatusFilled
	case stateCancelled:
		return common.StatusCanceled
	case stateInvalid:
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}
