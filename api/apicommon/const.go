// Package apicommon provides common types, constants, and helper functions for the API.
package apicommon

// MetadataKey is a type to define the key for the metadata stored in the
// context.
type MetadataKey string

// UserIDMetadataKey is the key used to store the authenticated user id in the
// context.
const UserIDMetadataKey MetadataKey = "userId"

const (
	// MaxBodySize is the largest request body accepted by the handlers.
	MaxBodySize = 1 << 20
	// MaxMagazinesLimit caps the limit query parameter of the magazines list.
	MaxMagazinesLimit = 100
	// DescriptionExcerptLength is the number of characters of the description
	// returned in magazine lists.
	DescriptionExcerptLength = 200
)
