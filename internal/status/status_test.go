package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(GroupAddressBook, KnownRecipient))
	assert.True(t, Allowed(GroupAddressBook, UnknownRecipient))
	assert.False(t, Allowed(GroupAddressBook, LowActivity))
	assert.True(t, Allowed(GroupThreat, HypernativeGuard))
	assert.False(t, Allowed(GroupThreat, Verified))
	assert.False(t, Allowed(Group("NOPE"), KnownRecipient))
}

func TestFailedAllowedEverywhere(t *testing.T) {
	for _, g := range Groups() {
		assert.True(t, Allowed(g, Failed), "group %s should permit FAILED", g)
	}
}

func TestGroupsAreKnown(t *testing.T) {
	for _, g := range Groups() {
		assert.True(t, g.IsKnown())
		assert.NotEmpty(t, g.Codes())
	}
	assert.False(t, Group("").IsKnown())
}

func TestCodesReturnsCopy(t *testing.T) {
	codes := GroupAddressBook.Codes()
	codes[0] = "MUTATED"
	assert.Equal(t, KnownRecipient, GroupAddressBook.Codes()[0])
}

func TestDomainGroupsPartitionTaxonomy(t *testing.T) {
	seen := map[Group]int{}
	for _, g := range RecipientGroups() {
		seen[g]++
	}
	for _, g := range ContractGroups() {
		seen[g]++
	}
	for _, g := range ThreatGroups() {
		seen[g]++
	}
	assert.Len(t, seen, len(Groups()))
	for g, n := range seen {
		assert.Equal(t, 1, n, "group %s listed in more than one domain", g)
	}
}
