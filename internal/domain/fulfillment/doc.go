// Package fulfillment holds the order fulfillment aggregates: the Order with
// its status machine and print tracking, and the packing Batch.
//
// Orders are mutated only through Order.Transition and Order.MarkPrinted.
// Batch membership is a lookup on Order.BatchID, decided once when the batch
// is created and released only when the batch is cancelled.
package fulfillment
