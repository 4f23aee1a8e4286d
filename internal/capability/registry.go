package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"

	"twbridge/internal/retry"
	"twbridge/util"
)

// Host-level failures.  Neither reaches the bridge.
var (
	ErrUnknownOpcode = errors.New("unknown command")
	ErrUsage         = errors.New("usage")
)

// Spec describes one registered opcode.
type Spec struct {
	Name    string
	Usage   string // argument synopsis, e.g. "<agent> <direction> [blocks]"
	Summary string
	MinArgs int
	MaxArgs int // -1: no limit
	Capability
}

// Registry maps opcode names to their specs.  Names are case-insensitive.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds s, replacing any opcode of the same name.
func (r *Registry) Register(s Spec) {
	s.Name = strings.ToLower(s.Name)
	r.specs[s.Name] = &s
}

// Lookup finds an opcode by name.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.specs[strings.ToLower(name)]
	return s, ok
}

// Specs returns every opcode sorted by name.
func (r *Registry) Specs() []*Spec {
	out := make([]*Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Defaults fill in the connect opcode's omitted arguments.
type Defaults struct {
	URL    string
	Code   string
	Player string
}

// Host parses opcode lines and runs them against a bridge.
type Host struct {
	Bridge   Bridge
	Out      io.Writer
	Logger   *util.Logger
	Defaults Defaults
	// PairRetry, when set, retries connect on transport failures.
	PairRetry *retry.Backoff
	// LoadBlocks fetches the block catalog after each successful
	// connect.  Failures are logged, not returned.
	LoadBlocks bool
	// Color enables ANSI colouring of JSON output.
	Color bool

	reg *Registry
}

// NewHost returns a host with the built-in opcodes registered.  A nil
// out writes to stdout.
func NewHost(b Bridge, out io.Writer, logger *util.Logger) *Host {
	if out == nil {
		out = os.Stdout
	}
	return &Host{Bridge: b, Out: out, Logger: logger.Named("host"), reg: Builtins()}
}

// Registry returns the host's opcode table.
func (h *Host) Registry() *Registry { return h.reg }

// Exec tokenizes line (shell-style quoting) and runs the opcode it
// names.  Blank lines and lines starting with '#' are ignored.
func (h *Host) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	words, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return nil
	}
	return h.Run(ctx, words[0], words[1:]...)
}

// Run invokes the opcode name with args.
func (h *Host) Run(ctx context.Context, name string, args ...string) error {
	spec, ok := h.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("%w %q (try help)", ErrUnknownOpcode, name)
	}
	if len(args) < spec.MinArgs || (spec.MaxArgs >= 0 && len(args) > spec.MaxArgs) {
		return fmt.Errorf("%w: %s %s", ErrUsage, spec.Name, spec.Usage)
	}
	h.Logger.Debug("%s %q", spec.Name, args)
	return spec.Handle(ctx, &Call{Host: h, Name: spec.Name, Args: args})
}
