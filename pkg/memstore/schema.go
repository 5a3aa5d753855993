package memstore

// Property describes one field of a collection's schema.
type Property struct {
	Name string
	Type string
}

// Property data types, matching the store's schema vocabulary.
const (
	TypeText = "text"
	TypeInt  = "int"
)

var collectionSchemas = map[string][]Property{
	CollectionUserProfile: {
		{Name: propUserID, Type: TypeText},
		{Name: propDisplayName, Type: TypeText},
		{Name: propPronouns, Type: TypeText},
		{Name: propRole, Type: TypeText},
		{Name: propRelationshipNotes, Type: TypeText},
		{Name: propInteractionCount, Type: TypeInt},
		{Name: propMemory, Type: TypeText},
	},
	CollectionLongTermMemory: {
		{Name: propUserID, Type: TypeText},
		{Name: propMemoryText, Type: TypeText},
		{Name: propReinforcedCount, Type: TypeInt},
		{Name: propDedupKey, Type: TypeText},
		{Name: propCreatedAt, Type: TypeText},
	},
	CollectionRecentConversation: {
		{Name: propUserID, Type: TypeText},
		{Name: propSummary, Type: TypeText},
		{Name: propCreatedAt, Type: TypeText},
	},
	CollectionCandidateFact: {
		{Name: propUserID, Type: TypeText},
		{Name: propFactText, Type: TypeText},
		{Name: propObservedAt, Type: TypeText},
	},
}

func init() {
	// The agent's own memories share the long-term memory layout.
	collectionSchemas[CollectionAgentSelfMemory] = collectionSchemas[CollectionLongTermMemory]
}

// Collections returns the names of every collection the engine uses.
func Collections() []string {
	return []string{
		CollectionUserProfile,
		CollectionLongTermMemory,
		CollectionRecentConversation,
		CollectionAgentSelfMemory,
		CollectionCandidateFact,
	}
}

// Properties returns the schema of the named collection, or nil for an
// unknown collection.
func Properties(collection string) []Property {
	return collectionSchemas[collection]
}

// TextProperty returns the name of the searchable text property of the named
// collection, or "" for collections with no single text body.
func TextProperty(collection string) string {
	switch collection {
	case CollectionLongTermMemory, CollectionAgentSelfMemory:
		return propMemoryText
	case CollectionRecentConversation:
		return propSummary
	case CollectionCandidateFact:
		return propFactText
	}
	return ""
}

// OwnerProperty is the property every collection filters on for per-user
// scoping.
const OwnerProperty = "user_id"
