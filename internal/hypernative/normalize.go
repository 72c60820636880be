package hypernative

import (
	"strings"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

// Safe check ids with a dedicated status code.
const (
	CheckOwnershipChange  = "F-33095"
	CheckModuleChange     = "F-33053"
	CheckFallbackHandler  = "F-33063"
	CheckMastercopyChange = "F-33042"
)

// checkCodes maps safe check ids to status codes. The mastercopy check is
// mapped to the generic guard code: MASTERCOPY_CHANGE needs before/after
// values the vendor does not send.
var checkCodes = map[string]status.Code{
	CheckOwnershipChange:  status.OwnershipChange,
	CheckModuleChange:     status.ModuleChange,
	CheckFallbackHandler:  status.UnofficialFallbackHandler,
	CheckMastercopyChange: status.HypernativeGuard,
}

// Synthetic result wording.
const (
	NoThreatTitle     = "No threats detected"
	NoThreatDesc      = "Threat analysis found no issues."
	ChecksPassedTitle = "Custom checks passed"
	ChecksPassedDesc  = "All custom checks passed."
	FailedTitle       = "Hypernative analysis failed"
	DefaultFailedDesc = "An unexpected error occurred during threat analysis."
)

// MapSeverity maps a vendor severity to a level. Unknown values are INFO.
func MapSeverity(s string) severity.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityAccept:
		return severity.OK
	case SeverityWarn:
		return severity.Warn
	case SeverityDeny:
		return severity.Critical
	default:
		return severity.Info
	}
}

// CodeFor returns the status code for a safe check id.
func CodeFor(safeCheckID string) status.Code {
	if code, ok := checkCodes[safeCheckID]; ok {
		return code
	}
	return status.HypernativeGuard
}

// MapResponse converts an assessment into THREAT and CUSTOM_CHECKS results.
// A nil or failed assessment yields a single CRITICAL THREAT result.
func MapResponse(a Assessment) analysis.GroupResults {
	switch v := a.(type) {
	case *Success:
		if v == nil {
			break
		}
		return analysis.GroupResults{
			status.GroupThreat: mapGroup(v.Findings.ThreatAnalysis.Risks,
				analysis.New(severity.OK, status.NoThreat, NoThreatTitle, NoThreatDesc)),
			status.GroupCustomChecks: mapGroup(v.Findings.CustomChecks.Risks,
				analysis.New(severity.OK, status.CustomChecksPassed, ChecksPassedTitle, ChecksPassedDesc)),
		}
	case *Failure:
		if v != nil {
			return failureResults(v.Message)
		}
	}
	return failureResults("")
}

func mapGroup(risks []Risk, empty analysis.Result) []analysis.Result {
	if len(risks) == 0 {
		return []analysis.Result{empty}
	}
	out := make([]analysis.Result, 0, len(risks))
	for _, r := range risks {
		out = append(out, analysis.New(MapSeverity(r.Severity), CodeFor(r.SafeCheckID), r.Title, r.Details))
	}
	return analysis.SortBySeverity(out)
}

func failureResults(message string) analysis.GroupResults {
	if strings.TrimSpace(message) == "" {
		message = DefaultFailedDesc
	}
	return analysis.GroupResults{
		status.GroupThreat: {
			analysis.New(severity.Critical, status.HypernativeGuard, FailedTitle, message),
		},
	}
}

// ThreatResultsFor keys the mapped assessment by the checksummed Safe.
func ThreatResultsFor(safe string, a Assessment) analysis.ThreatResults {
	return analysis.ThreatResults{analysis.Checksum(safe): MapResponse(a)}
}
