// Package registry is the menu tree of available models. Branches map
// problem-type labels to subtrees; leaves pair a model constructor with the
// visualizer that drives it.
package registry

import (
	"encoding/json"
	"strings"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/visualizer"
)

// Node is a Branch or a Leaf.
type Node interface {
	node()
}

// Config holds the model choices made when a leaf is selected.
type Config struct {
	Intercept bool `json:"intercept"`
}

// DefaultConfig returns the choices used when the caller gives none.
func DefaultConfig() Config {
	return Config{Intercept: true}
}

// Leaf is a selectable model.
type Leaf struct {
	Name        string
	Description string
	Model       func(Config) model.Model
	Visualizer  visualizer.Factory
}

func (*Leaf) node() {}

// New builds the model and its visualizer.
func (l *Leaf) New(cfg Config, opts ...visualizer.Option) (visualizer.Visualizer, error) {
	if l.Model == nil || l.Visualizer == nil {
		return nil, errors.NewValidationError(l.Name, "leaf is missing a constructor", nil)
	}
	return l.Visualizer(l.Model(cfg), opts...)
}

// Branch maps labels to subtrees. Labels keep their insertion order.
type Branch struct {
	labels   []string
	children map[string]Node
}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{children: make(map[string]Node)}
}

func (*Branch) node() {}

// Add attaches n under label and returns b for chaining.
func (b *Branch) Add(label string, n Node) *Branch {
	if err := b.add(label, n); err != nil {
		panic(err)
	}
	return b
}

func (b *Branch) add(label string, n Node) error {
	if strings.TrimSpace(label) == "" {
		return errors.NewValidationError("label", "label is empty", label)
	}
	if n == nil {
		return errors.NewValidationError(label, "node is nil", nil)
	}
	if _, dup := b.children[label]; dup {
		return errors.NewValidationError(label, "duplicate label", label)
	}
	b.labels = append(b.labels, label)
	b.children[label] = n
	return nil
}

// Labels returns the child labels in insertion order.
func (b *Branch) Labels() []string {
	return append([]string(nil), b.labels...)
}

// Child returns the subtree under label.
func (b *Branch) Child(label string) (Node, bool) {
	n, ok := b.children[label]
	return n, ok
}

// Registry is a validated menu tree.
type Registry struct {
	root *Branch
}

// New validates root and returns the registry over it.
func New(root *Branch) (*Registry, error) {
	r := &Registry{root: root}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Default is the tree of implemented models.
func Default() *Registry {
	ols := &Leaf{
		Name:        "OLS",
		Description: "Ordinary Least Squares",
		Model:       newOLS,
		Visualizer:  visualizer.NewOLSVisualizer,
	}
	root := NewBranch().
		Add("Supervised", NewBranch().
			Add("Regression", NewBranch().
				Add("Cross Sectional", NewBranch().
					Add("Linear", NewBranch().
						Add("OLS", ols)))))
	r, err := New(root)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the node at path; the empty path is the root.
func (r *Registry) Lookup(path ...string) (Node, error) {
	var n Node = r.root
	for i, label := range path {
		b, ok := n.(*Branch)
		if !ok {
			return nil, errors.NewValidationError("path", "path continues past a leaf", strings.Join(path[:i+1], "/"))
		}
		if n, ok = b.Child(label); !ok {
			return nil, errors.Wrapf(errors.ErrNotFound, "registry path %q", strings.Join(path[:i+1], "/"))
		}
	}
	return n, nil
}

// Children returns the labels under the branch at path.
func (r *Registry) Children(path ...string) ([]string, error) {
	n, err := r.Lookup(path...)
	if err != nil {
		return nil, err
	}
	b, ok := n.(*Branch)
	if !ok {
		return nil, errors.NewValidationError("path", "path ends at a leaf", strings.Join(path, "/"))
	}
	return b.Labels(), nil
}

// Resolve returns the leaf at path. A path that stops at a branch is a
// ValidationError listing the choices left.
func (r *Registry) Resolve(path ...string) (*Leaf, error) {
	n, err := r.Lookup(path...)
	if err != nil {
		return nil, err
	}
	leaf, ok := n.(*Leaf)
	if !ok {
		return nil, errors.NewValidationError("path", "path ends at a branch; choose one of "+
			strings.Join(n.(*Branch).Labels(), ", "), strings.Join(path, "/"))
	}
	return leaf, nil
}

// WalkFunc is called for every leaf with its full path.
type WalkFunc func(path []string, leaf *Leaf) error

// Walk visits the leaves depth first in label order. It stops at the first
// error fn returns.
func (r *Registry) Walk(fn WalkFunc) error {
	return walk(r.root, nil, fn)
}

func walk(n Node, path []string, fn WalkFunc) error {
	switch n := n.(type) {
	case *Leaf:
		return fn(append([]string(nil), path...), n)
	case *Branch:
		for _, label := range n.labels {
			if err := walk(n.children[label], append(path, label), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that every branch has children and every leaf has both
// constructors, so following any labels eventually reaches a leaf.
func (r *Registry) Validate() error {
	if r.root == nil {
		return errors.NewValidationError("root", "registry has no root", nil)
	}
	return validate(r.root, nil)
}

func validate(n Node, path []string) error {
	at := "/" + strings.Join(path, "/")
	switch n := n.(type) {
	case *Leaf:
		if n == nil || n.Model == nil || n.Visualizer == nil {
			return errors.NewValidationError(at, "leaf needs a model and a visualizer constructor", nil)
		}
	case *Branch:
		if n == nil || len(n.labels) == 0 {
			return errors.NewValidationError(at, "branch has no children", nil)
		}
		for _, label := range n.labels {
			if err := validate(n.children[label], append(path, label)); err != nil {
				return err
			}
		}
	default:
		return errors.NewValidationError(at, "unknown node type", n)
	}
	return nil
}

// Entry is the JSON view of one node.
type Entry struct {
	Path        []string `json:"path"`
	Kind        string   `json:"kind"`
	Children    []string `json:"children,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Describe returns the Entry at path.
func (r *Registry) Describe(path ...string) (*Entry, error) {
	n, err := r.Lookup(path...)
	if err != nil {
		return nil, err
	}
	e := &Entry{Path: append([]string{}, path...)}
	switch n := n.(type) {
	case *Leaf:
		e.Kind, e.Name, e.Description = "leaf", n.Name, n.Description
	case *Branch:
		e.Kind, e.Children = "branch", n.Labels()
	}
	return e, nil
}

// MarshalJSON renders the tree as nested objects; leaves carry their name
// and description.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(tree(r.root))
}

func tree(n Node) interface{} {
	switch n := n.(type) {
	case *Leaf:
		return map[string]string{"name": n.Name, "description": n.Description}
	case *Branch:
		out := make(map[string]interface{}, len(n.labels))
		for _, label := range n.labels {
			out[label] = tree(n.children[label])
		}
		return out
	}
	return nil
}
