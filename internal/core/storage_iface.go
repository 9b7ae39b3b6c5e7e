package core

import "context"

//go:generate mockgen -source=storage_iface.go -destination=mocks/kvstore_mock.go -package=mocks

// KVStore persists small string values between runs.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
