// Package dtree runs prompt decision graphs over a chat dialog.
//
// A graph is a set of named nodes, each carrying a prompt template, joined by
// edges that branch on the assistant's latest reply. Traversal starts at the
// node named "init" and ends at a node with no outgoing edges; the terminal
// reply is the graph's output.
package dtree

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// InitNode is the required entry node name.
const InitNode = "init"

// ErrDeadEnd marks a traversal where no outgoing edge matched the reply.
// Callers treat it as a recoverable runtime failure of the current document,
// not a programmer error.
var ErrDeadEnd = errors.New("no edge matched the reply")

// DeadEndError carries the node and reply that stranded the traversal.
type DeadEndError struct {
	Node  string
	Reply string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("dead end at node %q: %v", e.Node, ErrDeadEnd)
}

func (e *DeadEndError) Unwrap() error { return ErrDeadEnd }

// Predicate decides whether an edge matches an assistant reply. Predicates
// must be pure.
type Predicate func(reply string) bool

func firstToken(reply string) string {
	token := strings.TrimSpace(reply)
	if idx := strings.IndexFunc(token, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}); idx >= 0 {
		token = token[:idx]
	}
	token = strings.Trim(token, ".,!?:;\"'")
	return strings.ToLower(token)
}

// StartsWithYes matches replies whose first token is "yes".
func StartsWithYes(reply string) bool { return firstToken(reply) == "yes" }

// StartsWithNo matches replies whose first token is "no".
func StartsWithNo(reply string) bool { return firstToken(reply) == "no" }

// DoesNotStartWithNo matches any reply whose first token is not "no".
func DoesNotStartWithNo(reply string) bool { return firstToken(reply) != "no" }

type edge struct {
	to   string
	when Predicate
}

type node struct {
	prompt string
	edges  []edge
}

// Graph is a directed prompt graph with graph-wide keyword bindings used to
// format node prompts.
type Graph struct {
	bindings map[string]any
	nodes    map[string]*node
}

// NewGraph returns an empty graph carrying the given prompt bindings.
func NewGraph(bindings map[string]any) *Graph {
	if bindings == nil {
		bindings = map[string]any{}
	}
	return &Graph{bindings: bindings, nodes: map[string]*node{}}
}

// AddNode registers a node with its prompt template. Adding the same name
// twice replaces the prompt but keeps the edges.
func (g *Graph) AddNode(name, prompt string) *Graph {
	if n, ok := g.nodes[name]; ok {
		n.prompt = prompt
		return g
	}
	g.nodes[name] = &node{prompt: prompt}
	return g
}

// AddEdge joins from to to. A nil predicate matches unconditionally. Edges
// are evaluated in insertion order and the first match wins.
func (g *Graph) AddEdge(from, to string, when Predicate) *Graph {
	n, ok := g.nodes[from]
	if !ok {
		n = &node{}
		g.nodes[from] = n
	}
	n.edges = append(n.edges, edge{to: to, when: when})
	return g
}

// Bindings returns the graph-wide prompt bindings.
func (g *Graph) Bindings() map[string]any { return g.bindings }

func (g *Graph) validate() error {
	if _, ok := g.nodes[InitNode]; !ok {
		return fmt.Errorf("graph has no %q node", InitNode)
	}
	for name, n := range g.nodes {
		for _, e := range n.edges {
			if _, ok := g.nodes[e.to]; !ok {
				return fmt.Errorf("edge from %q targets unknown node %q", name, e.to)
			}
		}
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// FormatPrompt substitutes {key} placeholders from bindings. A placeholder
// with no binding is a programmer error and fails loudly rather than leaking
// a literal brace into the prompt.
func FormatPrompt(template string, bindings map[string]any) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := bindings[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template references unbound keys: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Chatter is the dialog surface the tree drives, satisfied by
// *llm.ChatCaller.
type Chatter interface {
	Call(ctx context.Context, user string) (string, error)
}

// Tree executes one traversal of a graph over a chat dialog. Collected
// assistant replies are available to later prompts under their node names.
type Tree struct {
	graph   *Graph
	chat    Chatter
	outputs map[string]any
}

// NewTree binds a graph to a dialog.
func NewTree(graph *Graph, chat Chatter) *Tree {
	return &Tree{graph: graph, chat: chat, outputs: map[string]any{}}
}

// Outputs returns the replies collected so far, keyed by node name.
func (t *Tree) Outputs() map[string]any { return t.outputs }

// Run traverses the graph from init and returns the terminal reply.
func (t *Tree) Run(ctx context.Context) (string, error) {
	if err := t.graph.validate(); err != nil {
		return "", err
	}

	current := InitNode
	for {
		n := t.graph.nodes[current]

		bindings := make(map[string]any, len(t.graph.bindings)+len(t.outputs))
		for k, v := range t.graph.bindings {
			bindings[k] = v
		}
		for k, v := range t.outputs {
			bindings[k] = v
		}
		prompt, err := FormatPrompt(n.prompt, bindings)
		if err != nil {
			return "", fmt.Errorf("node %q: %w", current, err)
		}

		reply, err := t.chat.Call(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("node %q: %w", current, err)
		}
		t.outputs[current] = reply

		if len(n.edges) == 0 {
			return reply, nil
		}

		next := ""
		for _, e := range n.edges {
			if e.when == nil || e.when(reply) {
				next = e.to
				break
			}
		}
		if next == "" {
			return "", &DeadEndError{Node: current, Reply: reply}
		}
		current = next
	}
}
