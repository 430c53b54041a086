package space

import "strconv"

// Well-known keys in the shared local key-value store. Everything this
// system owns is namespaced under "space_".
const (
	// KeySessionPrefix prefixes per-session records; the suffix is the
	// local integer id.
	KeySessionPrefix = "space_session_"

	KeyAdvisors      = "space_advisors"
	KeyAdvisorGroups = "space_advisor_groups"

	KeyMaxTokens        = "space_max_tokens"
	KeyReasoningMode    = "space_reasoning_mode"
	KeySidebarCollapsed = "space_sidebar_collapsed"
	KeyAutoScroll       = "space_auto_scroll"
	KeyParagraphSpacing = "space_paragraph_spacing"

	KeyMigrationStatus  = "space_migration_status"
	KeyMigrationDate    = "space_migration_date"
	KeyMigrationSummary = "space_migration_summary"

	// Current-session pointers. Exactly one may be set at a time: one holds
	// a local integer id, the other a remote UUID.
	KeyCurrentSessionID      = "space_current_session_id"
	KeyCurrentConversationID = "space_current_conversation_id"

	// Secrets storage: age-armored API keys plus the key pair used to
	// encrypt them.
	KeySecretPrefix = "space_secret_"
	KeyPublicKey    = "space_public_key"
	KeyPrivateKey   = "space_private_key"
)

// SessionKey returns the store key for a local session id.
func SessionKey(id int) string {
	return KeySessionPrefix + strconv.Itoa(id)
}
