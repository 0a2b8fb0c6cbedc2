// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "sort"

// presenceTracker holds the set of identities currently online. The
// server broadcasts the roster wholesale, so every update is a full
// replace — never a union with the previous set. Loop-only.
type presenceTracker struct {
	online map[string]struct{}
}

// replace swaps in a freshly broadcast roster.
func (p *presenceTracker) replace(roster []string) {
	p.online = make(map[string]struct{}, len(roster))
	for _, id := range roster {
		p.online[id] = struct{}{}
	}
}

// clear empties the set. Called on disconnect: presence does not
// survive a connection, a fresh roster arrives with the next join.
func (p *presenceTracker) clear() {
	p.online = nil
}

func (p *presenceTracker) isOnline(id string) bool {
	_, ok := p.online[id]
	return ok
}

// snapshot returns the online IDs, sorted for stable presentation.
func (p *presenceTracker) snapshot() []string {
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
