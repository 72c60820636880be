package shield

import (
	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

// Status is the single verdict shown for a whole analysis.
type Status struct {
	Severity severity.Level `json:"severity"`
	Title    string         `json:"title"`
}

// OverallInput carries every result set that contributes to the verdict.
// Any field may be left empty.
type OverallInput struct {
	Recipient        analysis.RecipientResults
	Contract         analysis.ContractResults
	Threat           analysis.ThreatResults
	SimulationFailed bool
}

// SimulationFailedResult is injected when the transaction simulation failed.
var SimulationFailedResult = analysis.New(
	severity.Warn,
	status.Failed,
	"Simulation failed",
	"The transaction could not be simulated. Review the transaction details carefully.",
)

// OverallStatus flattens every finding and returns the verdict of the most
// urgent one. ok is false when there is nothing to judge.
func OverallStatus(in OverallInput) (Status, bool) {
	var all []analysis.Result
	all = appendAddressResults(all, in.Recipient)
	all = appendAddressResults(all, in.Contract)
	for _, addr := range in.Threat.Keys() {
		all = append(all, in.Threat[addr].All()...)
	}
	if in.SimulationFailed {
		all = append(all, SimulationFailedResult)
	}

	primary, ok := analysis.PrimaryResult(all)
	if !ok {
		return Status{}, false
	}
	return Status{Severity: primary.Severity, Title: primary.Severity.Title()}, true
}

func appendAddressResults(all []analysis.Result, results analysis.RecipientResults) []analysis.Result {
	for _, addr := range results.Keys() {
		all = append(all, results[addr].Groups.All()...)
	}
	return all
}
