// -----------------------------------------------------------------------
// Parameter Resolver - Reconcile requested selection with server options
// -----------------------------------------------------------------------

package scraper

// Resolve intersects the caller's requested selection with the
// server-declared available options. The result preserves the order of
// available, not requested, because the server expects multi-select payload
// values in page order. Duplicate requests collapse to one entry.
//
// An empty available list is a NoOptionsError (the source page is broken).
// An empty intersection is an EmptySelectionError (the caller asked for data
// the server does not currently offer).
func Resolve(requested, available []string) ([]string, error) {
	if len(available) == 0 {
		return nil, &NoOptionsError{}
	}

	wanted := make(map[string]bool, len(requested))
	for _, v := range requested {
		wanted[v] = true
	}

	resolved := make([]string, 0, len(requested))
	for _, v := range available {
		if wanted[v] {
			resolved = append(resolved, v)
			delete(wanted, v) // collapse duplicates in available too
		}
	}

	if len(resolved) == 0 {
		return nil, &EmptySelectionError{Requested: requested, Available: len(available)}
	}

	return resolved, nil
}
