// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver. Schema migrations are embedded and run
// with goose.
package postgres
