// Package lfu implements a bounded generic cache with O(1) get/put and
// least-frequently-used eviction, ties broken by insertion recency.
package lfu
