package order

// Prepend returns list with s in front.
func Prepend(list []Summary, s Summary) []Summary {
	out := make([]Summary, 0, len(list)+1)
	out = append(out, s)
	return append(out, list...)
}

// RemovePending drops the placeholder carrying ref.
func RemovePending(list []Summary, ref PendingRef) []Summary {
	out := make([]Summary, 0, len(list))
	for _, s := range list {
		if s.IsPending() && s.Pending == ref {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Reconcile evicts the placeholder carrying ref and prepends the persisted order.
// A persisted order already present by ID is not duplicated.
func Reconcile(list []Summary, ref PendingRef, persisted Summary) []Summary {
	persisted.Pending = ""
	out := make([]Summary, 0, len(list)+1)
	out = append(out, persisted)
	for _, s := range list {
		if s.IsPending() && s.Pending == ref {
			continue
		}
		if !s.IsPending() && s.ID == persisted.ID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// HasPending reports whether the placeholder carrying ref is still listed.
func HasPending(list []Summary, ref PendingRef) bool {
	for _, s := range list {
		if s.IsPending() && s.Pending == ref {
			return true
		}
	}
	return false
}

// ApplyChange patches status and total of a persisted order matching c.ID. Unknown
// ids leave the list untouched and changed is false.
func ApplyChange(list []Summary, c Change) (out []Summary, changed bool) {
	if c.ID == "" {
		return list, false
	}
	out = make([]Summary, len(list))
	copy(out, list)
	for i := range out {
		if out[i].IsPending() || out[i].ID != c.ID {
			continue
		}
		if c.Status != nil {
			out[i].Status = *c.Status
		}
		if c.Total != nil {
			out[i].Total = *c.Total
		}
		changed = true
	}
	if !changed {
		return list, false
	}
	return out, true
}
