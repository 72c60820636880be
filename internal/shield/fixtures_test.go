package shield

import (
	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

// EIP-55 reference addresses. Ascending key order is addrA, addrD, addrC, addrB.
const (
	addrA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	addrC = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	addrD = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"

	addrALower = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

var (
	knownRecipient = analysis.New(severity.OK, status.KnownRecipient,
		"Known recipient", "This address is in your address book.")
	unknownRecipient = analysis.New(severity.Info, status.UnknownRecipient,
		"Unknown recipient", "This address is not in your address book or a Safe you own.")
	lowActivity = analysis.New(severity.Warn, status.LowActivity,
		"Low activity recipient", "This address has few transactions.")
	newRecipient = analysis.New(severity.Info, status.NewRecipient,
		"New recipient", "You are interacting with this address for the first time.")
	recurringRecipient = analysis.New(severity.OK, status.RecurringRecipient,
		"Recurring recipient", "You have interacted with this address before.")
	activityFailed = analysis.New(severity.Warn, status.Failed,
		"Activity check failed", "Could not check the address activity.")
	verifiedContract = analysis.New(severity.OK, status.Verified,
		"Verified contract", "This contract is verified.")
	unverifiedContract = analysis.New(severity.Info, status.NotVerified,
		"Unverified contract", "This contract is not verified.")
	maliciousThreat = analysis.New(severity.Critical, status.Malicious,
		"Malicious transaction", "Funds would be drained.")
	noThreat = analysis.New(severity.OK, status.NoThreat,
		"No threats detected", "Threat analysis found no issues.")
)

func groups(pairs ...any) analysis.GroupResults {
	g := analysis.GroupResults{}
	for i := 0; i+1 < len(pairs); i += 2 {
		g[pairs[i].(status.Group)] = pairs[i+1].([]analysis.Result)
	}
	return g
}
