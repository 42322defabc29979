package policy

import (
	"fmt"
	"strings"
)

// Evaluate runs a rule configuration of the given policy type against a
// request and returns the verdict. It is the single matching routine
// shared by the live decision path, the shadow path, and the impact
// simulator, so counterfactual results always agree with enforcement.
//
// Evaluate is pure: it never mutates the request or the config.
func Evaluate(typ Type, cfg RuleConfig, req *ActionRequest) (RuleVerdict, error) {
	switch typ {
	case TypeGeofence:
		return evaluateGeofence(cfg, req), nil
	case TypeAgentRevocation:
		return evaluateAgentRevocation(cfg, req), nil
	case TypeDataTransfer:
		return evaluateDataTransfer(cfg, req), nil
	case TypeProcessingRestriction:
		return evaluateProcessingRestriction(cfg, req), nil
	default:
		return RuleVerdict{}, fmt.Errorf("%w: %q", ErrUnknownPolicyType, typ)
	}
}

func evaluateGeofence(cfg RuleConfig, req *ActionRequest) RuleVerdict {
	country := strings.ToUpper(req.DetectedCountry)
	if country == "" {
		country = "UNKNOWN"
	}
	for _, blocked := range cfg.BlockedCountries {
		if strings.EqualFold(blocked, country) {
			return RuleVerdict{
				Block:  true,
				Reason: fmt.Sprintf("origin country %s is geofenced", country),
				Risk:   RiskHigh,
			}
		}
	}
	// Indeterminate origin fails safe: a geofence cannot be verified
	// for traffic whose country is unknown.
	if country == "UNKNOWN" && len(cfg.BlockedCountries) > 0 {
		return RuleVerdict{
			Block:  true,
			Reason: "origin country could not be determined",
			Risk:   RiskMedium,
		}
	}
	return RuleVerdict{}
}

func evaluateAgentRevocation(cfg RuleConfig, req *ActionRequest) RuleVerdict {
	for _, revoked := range cfg.RevokedAgents {
		if revoked == req.AgentID {
			return RuleVerdict{
				Block:  true,
				Reason: fmt.Sprintf("agent %s has been revoked", req.AgentID),
				Risk:   RiskCritical,
			}
		}
	}
	return RuleVerdict{}
}

func evaluateDataTransfer(cfg RuleConfig, req *ActionRequest) RuleVerdict {
	if len(cfg.AllowedRegions) == 0 || req.TargetRegion == "" {
		return RuleVerdict{}
	}
	for _, allowed := range cfg.AllowedRegions {
		if strings.EqualFold(allowed, req.TargetRegion) {
			return RuleVerdict{}
		}
	}
	return RuleVerdict{
		Block:  true,
		Reason: fmt.Sprintf("transfer to region %s is not permitted", req.TargetRegion),
		Risk:   RiskHigh,
	}
}

func evaluateProcessingRestriction(cfg RuleConfig, req *ActionRequest) RuleVerdict {
	for _, restricted := range cfg.RestrictedActions {
		if strings.EqualFold(restricted, req.ActionType) {
			return RuleVerdict{
				Block:  true,
				Reason: fmt.Sprintf("action type %s is restricted", req.ActionType),
				Risk:   RiskMedium,
			}
		}
	}
	return RuleVerdict{}
}
