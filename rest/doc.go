// Package rest implements the HTTP side of an audio node: resolving search
// queries and URLs to playable tracks and decoding track blobs back to
// metadata. Decoded metadata is cached with an LFU policy since the same
// tracks are decoded over and over.
package rest
