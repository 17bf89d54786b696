package ratelimit

import "fmt"

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(adminID uint64, decision Decision) string {
	if adminID == 0 || decision.Window.Unlimited() {
		return ""
	}
	switch decision.Scope {
	case ScopeMembership:
		if decision.MembershipID == 0 {
			return ""
		}
		return fmt.Sprintf("a:%d:ms:%d", adminID, decision.MembershipID)
	case ScopeAdmin:
		return fmt.Sprintf("a:%d", adminID)
	default:
		return ""
	}
}
