// Package export converts a trained pipeline into a portable,
// cross-runtime computation graph for client-side scoring: a directed
// graph of numeric operations (impute, scale, tree ensemble, argmax)
// that reproduces predict and predict-proba without this codebase.
//
// The graph is positional and carries no names, so a sidecar document
// with the feature order and class ordering always accompanies it.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"exoclass/internal/forest"
	"exoclass/internal/pipeline"
)

const (
	// GraphFile and MetaFile are the fixed artifact names under the
	// export directory.
	GraphFile = "model.graph.json"
	MetaFile  = "meta.json"
)

// Graph is the exported operation graph. Nodes are evaluated in order;
// each consumes the value named by Input and produces Output.
type Graph struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
}

// Node is one operation. Exactly one op-specific attribute set is
// populated depending on Op.
type Node struct {
	Op     string `json:"op"` // input, impute, scale, tree_ensemble, argmax
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`

	// input
	Shape []int `json:"shape,omitempty"`

	// impute: replace NaN at position i with Values[i]
	Values []float64 `json:"values,omitempty"`

	// scale: divide position i by Divisors[i]
	Divisors []float64 `json:"divisors,omitempty"`

	// tree_ensemble: soft-vote over flattened trees
	Trees      []ExportedTree `json:"trees,omitempty"`
	NumClasses int            `json:"num_classes,omitempty"`
}

// ExportedTree is one tree as parallel node tables, the layout
// client-side runtimes evaluate without pointer chasing.
type ExportedTree struct {
	FeatureIdx []int       `json:"feature_idx"`
	Threshold  []float64   `json:"threshold"`
	LeftChild  []int       `json:"left_child"`
	RightChild []int       `json:"right_child"`
	IsLeaf     []bool      `json:"is_leaf"`
	Dist       [][]float64 `json:"dist"`
}

// Meta is the sidecar carrying the orderings the positional graph
// loses. Classes must round-trip exactly from the model artifact.
type Meta struct {
	Features []string `json:"features"`
	Classes  []string `json:"classes"`
}

// Build assembles the graph and sidecar from a loaded artifact. The
// classifier must be the native forest; other classifier kinds have no
// tree tables to export.
func Build(a *pipeline.Artifact) (*Graph, *Meta, error) {
	f, ok := a.Model.(*forest.Forest)
	if !ok {
		return nil, nil, fmt.Errorf("export: classifier %T has no portable representation", a.Model)
	}
	if !a.Transform.Fitted {
		return nil, nil, fmt.Errorf("export: transform is not fitted")
	}

	trees := make([]ExportedTree, len(f.Trees))
	for t := range f.Trees {
		nodes := f.Trees[t].Nodes
		et := ExportedTree{
			FeatureIdx: make([]int, len(nodes)),
			Threshold:  make([]float64, len(nodes)),
			LeftChild:  make([]int, len(nodes)),
			RightChild: make([]int, len(nodes)),
			IsLeaf:     make([]bool, len(nodes)),
			Dist:       make([][]float64, len(nodes)),
		}
		for i, n := range nodes {
			et.FeatureIdx[i] = n.FeatureIdx
			et.Threshold[i] = n.Threshold
			et.LeftChild[i] = n.LeftChild
			et.RightChild[i] = n.RightChild
			et.IsLeaf[i] = n.IsLeaf
			et.Dist[i] = n.Dist
		}
		trees[t] = et
	}

	graph := &Graph{
		Format:  "exoclass-graph",
		Version: 1,
		Nodes: []Node{
			{Op: "input", Name: "features", Output: "features", Shape: []int{len(a.Features)}},
			{Op: "impute", Name: "imputer", Input: "features", Output: "imputed", Values: a.Transform.Medians},
			{Op: "scale", Name: "scaler", Input: "imputed", Output: "scaled", Divisors: a.Transform.Scales},
			{Op: "tree_ensemble", Name: "forest", Input: "scaled", Output: "proba", Trees: trees, NumClasses: len(a.Classes)},
			{Op: "argmax", Name: "decision", Input: "proba", Output: "class_index"},
		},
	}
	meta := &Meta{Features: a.Features, Classes: a.Classes}
	return graph, meta, nil
}

// Write serializes the graph and sidecar under dir.
func Write(graph *Graph, meta *Meta, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, GraphFile), graph); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, MetaFile), meta)
}

func writeJSON(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadMeta loads the sidecar back, used by round-trip checks and by
// consumers that only need the orderings.
func ReadMeta(dir string) (*Meta, error) {
	payload, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("read export meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("parse export meta: %w", err)
	}
	return &m, nil
}
