package model

import (
	"fmt"

	"sigtrade/internal/types"
)

// Node is a decision tree node. Leaves carry Value, the up-move probability;
// internal nodes send x[Feature] <= Threshold to Left, otherwise Right.
type Node struct {
	Feature   *int     `json:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Left      *int     `json:"left,omitempty"`
	Right     *int     `json:"right,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

type ForestParams struct {
	Trees []Tree `json:"trees"`
}

// Forest averages leaf probabilities across trees.
type Forest struct {
	features []string
	trees    []Tree
	version  string
}

func newForest(art Artifact) (*Forest, error) {
	if art.Forest == nil {
		return nil, fmt.Errorf("forest model requires a forest section")
	}
	for ti, tree := range art.Forest.Trees {
		if err := checkTree(tree, len(art.Features)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
	}
	return &Forest{features: art.Features, trees: art.Forest.Trees, version: art.Version}, nil
}

func checkTree(tree Tree, nFeatures int) error {
	n := len(tree.Nodes)
	for i, node := range tree.Nodes {
		if node.Value != nil {
			continue
		}
		if node.Feature == nil || node.Left == nil || node.Right == nil {
			return fmt.Errorf("node %d is neither leaf nor split", i)
		}
		if *node.Feature >= nFeatures {
			return fmt.Errorf("node %d feature index %d out of range", i, *node.Feature)
		}
		// children must point forward so traversal terminates
		if *node.Left <= i || *node.Left >= n || *node.Right <= i || *node.Right >= n {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

func (f *Forest) Version() string { return f.version }

func (f *Forest) Predict(row types.FeatureRow) (float64, error) {
	x, err := vector(f.features, row)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, tree := range f.trees {
		sum += tree.eval(x)
	}
	return clamp01(sum / float64(len(f.trees))), nil
}

func (t Tree) eval(x []float64) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Value != nil {
			return *node.Value
		}
		if x[*node.Feature] <= node.Threshold {
			i = *node.Left
		} else {
			i = *node.Right
		}
	}
}
