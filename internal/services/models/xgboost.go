package models

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// treeNode is one node of an xgboost JSON model dump (dump_format="json").
type treeNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split"`
	SplitCondition float64     `json:"split_condition"`
	Yes            int         `json:"yes"`
	No             int         `json:"no"`
	Missing        int         `json:"missing"`
	Leaf           *float64    `json:"leaf"`
	Children       []*treeNode `json:"children"`
}

// flatNode is a compiled tree node; feature < 0 marks a leaf.
type flatNode struct {
	feature   int
	threshold float64
	yes       int
	no        int
	missing   int
	value     float64
}

// Ensemble evaluates a gradient boosted regression tree ensemble.
type Ensemble struct {
	trees     [][]flatNode
	baseScore float64
	nFeatures int
}

func newEnsemble(a artifact, features []string) (*Ensemble, error) {
	resolve, err := splitResolver(a.Features, features)
	if err != nil {
		return nil, err
	}

	e := &Ensemble{baseScore: a.BaseScore, nFeatures: len(features), trees: make([][]flatNode, 0, len(a.Trees))}
	for i, root := range a.Trees {
		t, err := compileTree(root, resolve)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		e.trees = append(e.trees, t)
	}
	return e, nil
}

// splitResolver turns a split label ("f3", "Close") into an input position.
func splitResolver(modelFeatures, inputFeatures []string) (func(string) (int, error), error) {
	byName := make(map[string]int, len(inputFeatures))
	for i, f := range inputFeatures {
		byName[f] = i
	}
	var idx []int
	if len(modelFeatures) > 0 {
		var err error
		if idx, err = featureIndex(modelFeatures, inputFeatures); err != nil {
			return nil, err
		}
	}

	return func(split string) (int, error) {
		if p, ok := byName[split]; ok {
			return p, nil
		}
		if n, ok := strings.CutPrefix(split, "f"); ok {
			i, err := strconv.Atoi(n)
			if err == nil && i >= 0 {
				if idx != nil {
					if i < len(idx) {
						return idx[i], nil
					}
				} else if i < len(inputFeatures) {
					return i, nil
				}
			}
		}
		return 0, fmt.Errorf("unknown split feature %q", split)
	}, nil
}

func compileTree(root *treeNode, resolve func(string) (int, error)) ([]flatNode, error) {
	if root == nil {
		return nil, fmt.Errorf("empty tree")
	}

	byID := make(map[int]*treeNode)
	stack := []*treeNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, dup := byID[n.NodeID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		byID[n.NodeID] = n
		stack = append(stack, n.Children...)
	}

	// Renumber so the root is 0 and children are addressed by slice index.
	order := make(map[int]int, len(byID))
	ids := []int{root.NodeID}
	order[root.NodeID] = 0
	for i := 0; i < len(ids); i++ {
		n := byID[ids[i]]
		if n.Leaf != nil {
			continue
		}
		for _, c := range []int{n.Yes, n.No, n.Missing} {
			if _, ok := byID[c]; !ok {
				return nil, fmt.Errorf("node %d references missing child %d", n.NodeID, c)
			}
			if _, seen := order[c]; !seen {
				order[c] = len(ids)
				ids = append(ids, c)
			}
		}
	}

	out := make([]flatNode, len(ids))
	for i, id := range ids {
		n := byID[id]
		if n.Leaf != nil {
			out[i] = flatNode{feature: -1, value: *n.Leaf}
			continue
		}
		f, err := resolve(n.Split)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.NodeID, err)
		}
		out[i] = flatNode{
			feature:   f,
			threshold: n.SplitCondition,
			yes:       order[n.Yes],
			no:        order[n.No],
			missing:   order[n.Missing],
		}
	}
	if err := checkAcyclic(out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkAcyclic(nodes []flatNode) error {
	state := make([]uint8, len(nodes)) // 0 new, 1 visiting, 2 done
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case 1:
			return fmt.Errorf("tree contains a cycle at node %d", i)
		case 2:
			return nil
		}
		state[i] = 1
		if n := nodes[i]; n.feature >= 0 {
			for _, c := range []int{n.yes, n.no, n.missing} {
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		state[i] = 2
		return nil
	}
	return visit(0)
}

func (e *Ensemble) Infer(_ context.Context, features []float64) (float64, error) {
	if len(features) != e.nFeatures {
		return 0, fmt.Errorf("ensemble expects %d features, got %d", e.nFeatures, len(features))
	}
	sum := e.baseScore
	for _, t := range e.trees {
		sum += evalTree(t, features)
	}
	return sum, nil
}

func evalTree(t []flatNode, x []float64) float64 {
	i := 0
	for {
		n := t[i]
		if n.feature < 0 {
			return n.value
		}
		v := x[n.feature]
		switch {
		case math.IsNaN(v):
			i = n.missing
		case v < n.threshold:
			i = n.yes
		default:
			i = n.no
		}
	}
}
