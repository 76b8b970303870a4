// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package cache memoizes host facts that are expensive to look up and do
// not change while the tool runs.
package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Key names a memoized fact.
type Key string

const (
	// KeyTotalMemory is the physical memory size in bytes.
	KeyTotalMemory Key = "host.total_memory"
	// KeyManufacturer is the system manufacturer reported by the firmware.
	KeyManufacturer Key = "host.manufacturer"
	// KeyLowEnd is the result of the low-end host heuristic.
	KeyLowEnd Key = "host.low_end"
)

const (
	defaultExpire = 30 * time.Minute
	defaultPurge  = time.Minute
)

var (
	store = cache.New(defaultExpire, defaultPurge)
	group singleflight.Group
)

// Get returns the value for key.
//
// cache hit:
//
//	pull the value from the cache and return it.
//
// cache miss:
//
//	call cb to compute it. Concurrent misses on the same key share one cb
//	call. A value computed without error is cached with no expiration.
func Get[T any](key Key, cb func() (T, error)) (T, error) {
	return GetWithExpiration[T](key, cb, cache.NoExpiration)
}

// GetWithExpiration is Get with an explicit lifetime for the cached value.
func GetWithExpiration[T any](key Key, cb func() (T, error), expire time.Duration) (T, error) {
	if x, found := store.Get(string(key)); found {
		return x.(T), nil
	}

	v, err, _ := group.Do(string(key), func() (interface{}, error) {
		res, err := cb()
		// errors are not cached
		if err == nil {
			store.Set(string(key), res, expire)
		}
		return res, err
	})
	res, _ := v.(T)
	return res, err
}

// Forget drops the cached value of key.
func Forget(key Key) {
	store.Delete(string(key))
}

// Reset drops every cached value.
func Reset() {
	store.Flush()
}
