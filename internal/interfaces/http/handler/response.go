package handler

// OrderListData is the body of GET /orders
type OrderListData[T any] struct {
	Orders []T   `json:"orders"`
	Total  int64 `json:"total"`
}

// CountData carries a single count
type CountData struct {
	Count int64 `json:"count"`
}

// RetryAllData reports how many dead entries were requeued
type RetryAllData struct {
	Count int64 `json:"count"`
}
