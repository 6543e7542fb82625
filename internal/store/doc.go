// Package store defines the persistence interfaces consumed by the pipeline
// along with the error taxonomy shared by all implementations. Concrete
// PostgreSQL implementations live in internal/platform/postgres.
package store
