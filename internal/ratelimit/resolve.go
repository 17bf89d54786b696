package ratelimit

// ResolveLimit resolves the payment collection window for an admin. When a
// membership is named the window is shared by that admin and membership only,
// so a double-submitted form is throttled without slowing the rest of the desk.
func ResolveLimit(adminID, membershipID uint64) Decision {
	return resolve(LoadSettingsConfig(), adminID, membershipID)
}

func resolve(cfg SettingsConfig, adminID, membershipID uint64) Decision {
	w := Window{Limit: cfg.Limit, Length: cfg.Window}
	if adminID == 0 || w.Unlimited() {
		return Decision{}
	}
	if membershipID > 0 {
		return Decision{Window: w, Scope: ScopeMembership, MembershipID: membershipID}
	}
	return Decision{Window: w, Scope: ScopeAdmin}
}
