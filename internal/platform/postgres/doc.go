// Package postgres implements the store interfaces on PostgreSQL via
// database/sql with the pgx stdlib driver. It also hosts the durable job
// queue table, whose leasing relies on FOR UPDATE SKIP LOCKED.
package postgres
