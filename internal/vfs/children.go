package vfs

import "sort"

// findChildByName returns the authoritative child for name: concurrent
// creates of the same path leave two children under distinct keys in
// the parent directory's content, so resolution must pick one
// deterministically. The smaller document id wins; every peer applying
// this same rule converges on the same winner without coordination.
func findChildByName(children []RefNode, name string) (RefNode, bool) {
	var best *RefNode
	for i := range children {
		c := &children[i]
		if c.Tombstone || c.Name != name {
			continue
		}
		if best == nil || c.Pointer < best.Pointer {
			best = c
		}
	}
	if best == nil {
		return RefNode{}, false
	}
	return *best, true
}

// dedupChildren orders a directory's live children by creation time
// (its insertion order) and renames every loser of a same-name
// collision to "name~<short-id>", leaving the winner (smallest document
// id) under its original name. The rename is cosmetic: it only affects
// what this listing reports, never the stored RefNode.
func dedupChildren(children []RefNode) []RefNode {
	live := make([]RefNode, 0, len(children))
	for _, c := range children {
		if !c.Tombstone {
			live = append(live, c)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].Timestamps.Created != live[j].Timestamps.Created {
			return live[i].Timestamps.Created < live[j].Timestamps.Created
		}
		return live[i].Pointer < live[j].Pointer
	})

	byName := make(map[string][]int)
	for i, c := range live {
		byName[c.Name] = append(byName[c.Name], i)
	}

	out := make([]RefNode, len(live))
	copy(out, live)
	for _, idxs := range byName {
		if len(idxs) < 2 {
			continue
		}
		sort.Slice(idxs, func(a, b int) bool {
			return live[idxs[a]].Pointer < live[idxs[b]].Pointer
		})
		for rank, i := range idxs {
			if rank == 0 {
				continue
			}
			out[i].Name = out[i].Name + "~" + out[i].Pointer.ShortID()
		}
	}
	return out
}
