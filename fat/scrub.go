package fat

import (
	"context"
	"fmt"
)

// InconsistencyKind classifies one finding from Engine.VerifyChains.
type InconsistencyKind int

const (
	// InconsistencyCrossLinked marks a cluster claimed by more than one
	// chain (or visited twice within the same chain, i.e. a cycle).
	InconsistencyCrossLinked InconsistencyKind = iota
	// InconsistencyLeaked marks a cluster marked allocated in the FAT but
	// unreachable from any directory entry or the root directory's chain.
	InconsistencyLeaked
	// InconsistencyBrokenChain marks a directory entry whose first cluster
	// (or a link partway through its chain) is not a valid data cluster.
	InconsistencyBrokenChain
)

func (k InconsistencyKind) String() string {
	switch k {
	case InconsistencyCrossLinked:
		return "cross-linked"
	case InconsistencyLeaked:
		return "leaked"
	case InconsistencyBrokenChain:
		return "broken chain"
	default:
		return "unknown"
	}
}

// Inconsistency is one finding from a scrub pass.
type Inconsistency struct {
	Kind    InconsistencyKind
	Cluster ClusterID
	Path    string
}

func (i Inconsistency) String() string {
	if i.Path != "" {
		return fmt.Sprintf("%s: cluster %d (%s)", i.Kind, i.Cluster, i.Path)
	}
	return fmt.Sprintf("%s: cluster %d", i.Kind, i.Cluster)
}

// VerifyChains walks every directory entry reachable from root, recording
// which clusters are claimed by a live file or directory, then compares
// that set against every cluster the FAT itself marks allocated. It's a
// narrow, read-only analog of the full external audit collaborator
// original_source/audit.rs describes (out of scope here, per the
// exclusion carried from spec.md §1) -- scoped to exactly the kind of
// damage the mirrored-FAT write-back and generation-counter design can
// leave behind: a crash between the directory-entry write and the FAT
// update, "recoverable only by filesystem scrub."
//
// ctx is checked between directories so a caller walking a large volume
// can cancel the scan; VerifyChains itself never mutates anything.
func (e *Engine) VerifyChains(ctx context.Context, root *Dir) ([]Inconsistency, error) {
	claimed := make(map[ClusterID]string)
	var findings []Inconsistency

	var walk func(dir *Dir, path string) error
	walk = func(dir *Dir, path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := dir.Iter(true)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			childPath := path + "/" + entry.Name
			if entry.FirstCluster == 0 {
				if entry.IsDir() {
					continue // empty-chain directories shouldn't occur, but aren't a leak
				}
				continue // zero-length file
			}

			chain, walkErr := e.walkChainForScrub(entry.FirstCluster, claimed, childPath, &findings)
			if walkErr != nil {
				return walkErr
			}

			if entry.IsDir() && len(chain) > 0 {
				if err := walk(dir.childDir(entry.FirstCluster), childPath); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if root.chainHead != 0 {
		if _, err := e.walkChainForScrub(root.chainHead, claimed, "/", &findings); err != nil {
			return nil, err
		}
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}

	allocated, err := e.allAllocatedClusters()
	if err != nil {
		return nil, err
	}
	for cluster := range allocated {
		if _, ok := claimed[cluster]; !ok {
			findings = append(findings, Inconsistency{Kind: InconsistencyLeaked, Cluster: cluster})
		}
	}

	return findings, nil
}

// walkChainForScrub walks one entry's cluster chain, recording each
// cluster's ownership in claimed and flagging a cluster that's already
// claimed by an earlier path (cross-linked, including a chain that
// cycles back on itself) or that isn't a valid data cluster
// (broken chain).
func (e *Engine) walkChainForScrub(
	head ClusterID,
	claimed map[ClusterID]string,
	path string,
	findings *[]Inconsistency,
) ([]ClusterID, error) {
	if !e.IsValidCluster(head) {
		*findings = append(*findings, Inconsistency{Kind: InconsistencyBrokenChain, Cluster: head, Path: path})
		return nil, nil
	}

	var chain []ClusterID
	current := head
	for {
		if _, ok := claimed[current]; ok {
			*findings = append(*findings, Inconsistency{Kind: InconsistencyCrossLinked, Cluster: current, Path: path})
			break
		}
		claimed[current] = path
		chain = append(chain, current)

		next, ok, err := e.Next(current)
		if err != nil {
			*findings = append(*findings, Inconsistency{Kind: InconsistencyBrokenChain, Cluster: current, Path: path})
			break
		}
		if !ok {
			break
		}
		current = next
	}
	return chain, nil
}

// allAllocatedClusters scans the whole FAT and returns every cluster
// number whose entry is neither free, reserved, nor a bad-cluster marker.
func (e *Engine) allAllocatedClusters() (map[ClusterID]struct{}, error) {
	out := make(map[ClusterID]struct{})
	total := ClusterID(e.BootSec.TotalClusters + 2)
	for cluster := ClusterID(2); cluster < total; cluster++ {
		entry, err := e.Get(cluster)
		if err != nil {
			return nil, err
		}
		if entry == 0 || e.Type().IsBadCluster(entry) {
			continue
		}
		out[cluster] = struct{}{}
	}
	return out, nil
}
