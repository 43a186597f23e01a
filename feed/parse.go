package feed

import (
	"strconv"

	"depthflow/logger"
	"depthflow/models"
)

// ParseF32 converts an exchange numeric string to float32. Parse failures
// are logged and coerced to 0, never fatal; a single bad field must not
// tear down a connection.
func ParseF32(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		logger.GetLogger().WithComponent("feed_parse").WithError(err).WithFields(logger.Fields{
			"value": s,
		}).Warn("failed to parse float, coercing to 0")
		return 0
	}
	return float32(v)
}

// ParseOrders converts ["price","qty"] wire pairs into orders. Short rows
// are skipped.
func ParseOrders(levels [][]string) []models.Order {
	orders := make([]models.Order, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		orders = append(orders, models.Order{
			Price: ParseF32(level[0]),
			Qty:   ParseF32(level[1]),
		})
	}
	return orders
}
