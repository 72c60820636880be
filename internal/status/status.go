// Package status defines the Safe Shield finding taxonomy: the status groups
// (categories of finding) and the closed set of status codes each group may
// carry.
package status

// Group is a category of analysis finding.
type Group string

const (
	GroupAddressBook          Group = "ADDRESS_BOOK"
	GroupRecipientActivity    Group = "RECIPIENT_ACTIVITY"
	GroupRecipientInteraction Group = "RECIPIENT_INTERACTION"
	GroupBridge               Group = "BRIDGE"
	GroupContractVerification Group = "CONTRACT_VERIFICATION"
	GroupContractInteraction  Group = "CONTRACT_INTERACTION"
	GroupDelegatecall         Group = "DELEGATECALL"
	GroupThreat               Group = "THREAT"
	GroupCustomChecks         Group = "CUSTOM_CHECKS"
)

// Code is a specific finding type within a group.
type Code string

// Recipient codes.
const (
	KnownRecipient     Code = "KNOWN_RECIPIENT"
	UnknownRecipient   Code = "UNKNOWN_RECIPIENT"
	LowActivity        Code = "LOW_ACTIVITY"
	HighActivity       Code = "HIGH_ACTIVITY"
	NewRecipient       Code = "NEW_RECIPIENT"
	RecurringRecipient Code = "RECURRING_RECIPIENT"
)

// Bridge codes.
const (
	IncompatibleSafe   Code = "INCOMPATIBLE_SAFE"
	MissingOwnership   Code = "MISSING_OWNERSHIP"
	UnsupportedNetwork Code = "UNSUPPORTED_NETWORK"
	DifferentSafeSetup Code = "DIFFERENT_SAFE_SETUP"
	CompatibleSafe     Code = "COMPATIBLE_SAFE"
)

// Contract codes.
const (
	Verified                Code = "VERIFIED"
	NotVerified             Code = "NOT_VERIFIED"
	NotVerifiedBySafe       Code = "NOT_VERIFIED_BY_SAFE"
	VerificationUnavailable Code = "VERIFICATION_UNAVAILABLE"
	NewContract             Code = "NEW_CONTRACT"
	KnownContract           Code = "KNOWN_CONTRACT"
	UnexpectedDelegatecall  Code = "UNEXPECTED_DELEGATECALL"
	TrustedDelegatecall     Code = "TRUSTED_DELEGATECALL"
)

// Threat codes.
const (
	Malicious                 Code = "MALICIOUS"
	Moderate                  Code = "MODERATE"
	NoThreat                  Code = "NO_THREAT"
	OwnershipChange           Code = "OWNERSHIP_CHANGE"
	ModuleChange              Code = "MODULE_CHANGE"
	MastercopyChange          Code = "MASTERCOPY_CHANGE"
	UnofficialFallbackHandler Code = "UNOFFICIAL_FALLBACK_HANDLER"
	HypernativeGuard          Code = "HYPERNATIVE_GUARD"
	CustomChecksPassed        Code = "CUSTOM_CHECKS_PASSED"
)

// Failed is permitted in every group. It marks a check that could not run.
const Failed Code = "FAILED"

var groupCodes = map[Group][]Code{
	GroupAddressBook:          {KnownRecipient, UnknownRecipient},
	GroupRecipientActivity:    {LowActivity, HighActivity},
	GroupRecipientInteraction: {NewRecipient, RecurringRecipient},
	GroupBridge:               {IncompatibleSafe, MissingOwnership, UnsupportedNetwork, DifferentSafeSetup, CompatibleSafe},
	GroupContractVerification: {Verified, NotVerified, NotVerifiedBySafe, VerificationUnavailable},
	GroupContractInteraction:  {NewContract, KnownContract},
	GroupDelegatecall:         {UnexpectedDelegatecall, TrustedDelegatecall},
	GroupThreat: {
		Malicious, Moderate, NoThreat, OwnershipChange, ModuleChange,
		MastercopyChange, UnofficialFallbackHandler, HypernativeGuard,
	},
	GroupCustomChecks: {Malicious, Moderate, CustomChecksPassed, HypernativeGuard},
}

// Groups returns every group in canonical order.
func Groups() []Group {
	return []Group{
		GroupAddressBook,
		GroupRecipientActivity,
		GroupRecipientInteraction,
		GroupBridge,
		GroupContractVerification,
		GroupContractInteraction,
		GroupDelegatecall,
		GroupThreat,
		GroupCustomChecks,
	}
}

// RecipientGroups are the groups produced by recipient analysis.
func RecipientGroups() []Group {
	return []Group{GroupAddressBook, GroupRecipientActivity, GroupRecipientInteraction, GroupBridge}
}

// ContractGroups are the groups produced by contract analysis.
func ContractGroups() []Group {
	return []Group{GroupContractVerification, GroupContractInteraction, GroupDelegatecall}
}

// ThreatGroups are the groups produced by threat analysis.
func ThreatGroups() []Group {
	return []Group{GroupThreat, GroupCustomChecks}
}

// IsKnown reports whether g is part of the taxonomy.
func (g Group) IsKnown() bool {
	_, ok := groupCodes[g]
	return ok
}

// Codes returns the codes permitted in g, excluding Failed.
func (g Group) Codes() []Code {
	codes := groupCodes[g]
	out := make([]Code, len(codes))
	copy(out, codes)
	return out
}

// Allowed reports whether code c may appear under group g.
func Allowed(g Group, c Code) bool {
	codes, ok := groupCodes[g]
	if !ok {
		return false
	}
	if c == Failed {
		return true
	}
	for _, code := range codes {
		if code == c {
			return true
		}
	}
	return false
}
