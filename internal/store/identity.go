package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode/utf8"
)

// ComputeIdentity returns the lowercase hex SHA-256 of scopeID + ":" + logicalKey.
func ComputeIdentity(scopeID, logicalKey string) string {
	sum := sha256.Sum256([]byte(scopeID + ":" + logicalKey))
	return hex.EncodeToString(sum[:])
}

// ContentHash returns the lowercase hex SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DeriveAPIName renders Class#method, substituting Unknown/unknown for
// missing parts.
func DeriveAPIName(className, methodName string) string {
	if className == "" {
		className = "Unknown"
	}
	if methodName == "" {
		methodName = "unknown"
	}
	return className + "#" + methodName
}

// LogicalKey is the per-scope key the identity is computed from.
func (c *CodeChunk) LogicalKey() string {
	if c.APIName != "" {
		return c.APIName
	}
	return c.ClassName + ":" + c.MethodName
}

// Prepare fills the derived fields that are still empty.
func (c *CodeChunk) Prepare() {
	if c.APIName == "" {
		c.APIName = DeriveAPIName(c.ClassName, c.MethodName)
	}
	if c.ContentHash == "" {
		c.ContentHash = ContentHash(c.Content)
	}
	if c.Identity == "" {
		c.Identity = ComputeIdentity(c.ScopeID, c.LogicalKey())
	}
	c.ChunkSize = utf8.RuneCountInString(c.Content)
	if c.IndexedAt.IsZero() {
		c.IndexedAt = time.Now().UTC()
	}
}

// Prepare fills the derived fields that are still empty.
func (d *Document) Prepare() {
	if d.ContentHash == "" {
		d.ContentHash = ContentHash(d.Content)
	}
	if d.Identity == "" {
		d.Identity = ComputeIdentity(d.ScopeID, d.DocumentID)
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	if d.IndexedAt.IsZero() {
		d.IndexedAt = time.Now().UTC()
	}
}
