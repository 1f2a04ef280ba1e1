// Package models defines the domain entities of the upbeat playlist discovery service.
//
// The package contains two categories of types:
//
// 1. Transient values produced by provider adapters
//   - [Track] : provider-normalized track used as seeds and recommendation results
//
// 2. Persistent entities owned by the repositories package
//   - [Playlist] : generated playlist with visibility, share token, counters and export provenance
//   - [Song] : track stored in a playlist, flagged with IsGenerated
//   - [SpotifyCredential] : linked Spotify account tokens, one per user
//   - [User] : caller display name for community listings
//
// [Provider] and [Visibility] are closed string enums parsed with [ParseProvider] and [ParseVisibility].
package models
