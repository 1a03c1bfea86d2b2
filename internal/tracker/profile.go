package tracker

import (
	"nighthub/internal/consent"
	"nighthub/internal/identity"
	"nighthub/internal/storage"
)

// Profile is the shared state of one browser profile: the storage chain and
// the consent and identity stores built on it. Tabs of the same profile share
// a Profile and do not coordinate with each other.
type Profile struct {
	Chain    *storage.Chain
	Consent  *consent.Store
	Identity *identity.Store
}

// NewProfile wires consent and identity over channels, in read order.
// Revoking consent clears the identity.
func NewProfile(channels ...storage.Channel) *Profile {
	chain := storage.NewChain(channels...)
	consentStore := consent.NewStore(chain)
	identityStore := identity.NewStore(chain, consentStore)
	consentStore.OnRevoke(identityStore)

	return &Profile{
		Chain:    chain,
		Consent:  consentStore,
		Identity: identityStore,
	}
}
