package entities

import "fmt"

// RelationRef identifies one to-many relation of one owning record
// Example: article:42#tags
// This means: the ordered "tags" relation of article "42"
type RelationRef struct {
	OwnerType string // Owner type (e.g., "article")
	OwnerID   string // Owner ID (e.g., "42")
	Field     string // Relation field name (e.g., "tags")
}

// String returns a string representation of the relation reference
// Format: owner_type:owner_id#field
func (r *RelationRef) String() string {
	return fmt.Sprintf("%s:%s#%s", r.OwnerType, r.OwnerID, r.Field)
}

// LockKey returns the key used to serialize batches on this relation within a tenant.
// Every part is quoted so distinct relations never share a key, whatever their IDs contain.
// Format: "tenant"/"owner_type":"owner_id"#"field"
func (r *RelationRef) LockKey(tenantID string) string {
	return fmt.Sprintf("%q/%q:%q#%q", tenantID, r.OwnerType, r.OwnerID, r.Field)
}

// Validate checks if the relation reference is valid
func (r *RelationRef) Validate() error {
	if r.OwnerType == "" {
		return fmt.Errorf("owner type is required")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if r.Field == "" {
		return fmt.Errorf("relation field is required")
	}
	return nil
}
