// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel and AggregateModel
//   - order.go: orders, order_items and order_status_history
//   - batch.go: batches and the frozen batch_members join table
//   - outbox.go: outbox_events for relayed domain events
package models
