package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const codeNoSuchOrder = -2013

// Venue error codes worth retrying: unknown error, disconnect, too many
// requests, timeout and timestamp outside recvWindow.
var transientCodes = map[int64]bool{
	-1000: true,
	-1001: true,
	-1003: true,
	-1007: true,
	-1021: true,
}

// classify maps a go-binance error onto the domain taxonomy. When the
// caller's context is done the error passes through unclassified so retries
// stop; an HTTP client timeout alone stays transient.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("binance: %s: %w", op, err)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// Code 0 means the error body did not parse, typically a gateway 5xx.
		if apiErr.Code == 0 || transientCodes[apiErr.Code] {
			return &domain.ExchangeTransientError{Op: op, Err: err}
		}
		return &domain.ExchangeRejectError{Op: op, Code: apiErr.Code, Reason: apiErr.Message}
	}
	// Anything else failed in transport before the venue answered.
	return &domain.ExchangeTransientError{Op: op, Err: err}
}

func orderSide(s domain.Side) futures.SideType {
	if s == domain.SideShort {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func toAck(res *futures.CreateOrderResponse, side domain.Side) domain.OrderAck {
	return domain.OrderAck{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Symbol:      res.Symbol,
		Side:        side,
		Quantity:    parseFloat(res.OrigQuantity),
		ExecutedQty: parseFloat(res.ExecutedQuantity),
		AvgPrice:    parseFloat(res.AvgPrice),
		StopPrice:   parseFloat(res.StopPrice),
		Status:      string(res.Status),
		CreatedAt:   time.UnixMilli(res.UpdateTime).UTC(),
	}
}

func orderToAck(o *futures.Order, side domain.Side) domain.OrderAck {
	return domain.OrderAck{
		OrderID:     strconv.FormatInt(o.OrderID, 10),
		Symbol:      o.Symbol,
		Side:        side,
		Quantity:    parseFloat(o.OrigQuantity),
		ExecutedQty: parseFloat(o.ExecutedQuantity),
		AvgPrice:    parseFloat(o.AvgPrice),
		StopPrice:   parseFloat(o.StopPrice),
		Status:      string(o.Status),
		CreatedAt:   time.UnixMilli(o.UpdateTime).UTC(),
	}
}

// isUnknownOrder reports a -2013 "order does not exist" answer.
func isUnknownOrder(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeNoSuchOrder
}

func toRules(s futures.Symbol) domain.TradingRules {
	r := domain.TradingRules{Symbol: s.Symbol}
	if f := s.LotSizeFilter(); f != nil {
		r.QuantityStep = parseFloat(f.StepSize)
		r.MinQuantity = parseFloat(f.MinQuantity)
	}
	if f := s.PriceFilter(); f != nil {
		r.PriceTick = parseFloat(f.TickSize)
	}
	if f := s.MinNotionalFilter(); f != nil {
		r.MinNotional = parseFloat(f.Notional)
	}
	return r
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// formatFloat renders v with as many decimals as step carries, trimming
// binary noise. A zero step keeps the shortest exact representation.
func formatFloat(v, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', decimals(step), 64)
}

func decimals(step float64) int {
	d := 0
	for d < 12 && math.Abs(step-math.Round(step)) > 1e-12 {
		step *= 10
		d++
	}
	return d
}
