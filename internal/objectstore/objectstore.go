// Package objectstore wraps the S3 client used for validation logs and raw
// audio recordings. Consumers depend on the Client interface so tests can run
// against an in-memory store.
package objectstore

import (
	"context"
)

// Client is the object storage surface the service needs: flat listings,
// directory-style prefix listings, small-object transfer and existence probes.
type Client interface {
	// List returns the keys of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// ListPrefixes returns the common prefixes directly under prefix,
	// using "/" as delimiter.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	// Download fetches an object into memory. Objects handled here are small
	// (session CSVs) or bounded (single audio recordings).
	Download(ctx context.Context, key string) ([]byte, error)
	// Upload writes an object, replacing any existing content.
	Upload(ctx context.Context, key string, body []byte) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)
}
