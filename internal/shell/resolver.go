package shell

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoShellAvailable is returned when no candidate shell exists on the host.
var ErrNoShellAvailable = errors.New("no suitable shell found on the server")

const windowsFallback = `C:\Windows\System32\cmd.exe`

// Candidate is a shell the broker may spawn.
type Candidate struct {
	Path       string
	Args       []string
	InheritEnv bool
}

// StatFunc reports whether a path exists. Defaults to os.Stat.
type StatFunc func(name string) (os.FileInfo, error)

// Resolver picks the shell for a new session.
type Resolver struct {
	goos     string
	override *Candidate
	stat     StatFunc
	getenv   func(string) string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverride puts a configured shell ahead of the platform candidates.
// An empty path is ignored.
func WithOverride(path string, args ...string) Option {
	return func(r *Resolver) {
		if path == "" {
			return
		}
		r.override = &Candidate{Path: path, Args: args, InheritEnv: true}
	}
}

// WithStat replaces the filesystem check.
func WithStat(fn StatFunc) Option {
	return func(r *Resolver) {
		r.stat = fn
	}
}

// WithGetenv replaces the environment lookup used for %ComSpec%.
func WithGetenv(fn func(string) string) Option {
	return func(r *Resolver) {
		r.getenv = fn
	}
}

// NewResolver creates a resolver for the given GOOS value.
func NewResolver(goos string, opts ...Option) *Resolver {
	r := &Resolver{
		goos:   goos,
		stat:   os.Stat,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultCandidates returns the platform shell list in preference order.
func DefaultCandidates(goos string) []Candidate {
	return defaultCandidates(goos, os.Getenv)
}

func defaultCandidates(goos string, getenv func(string) string) []Candidate {
	if goos == "windows" {
		comspec := getenv("ComSpec")
		if comspec == "" {
			comspec = windowsFallback
		}
		return []Candidate{{Path: comspec, InheritEnv: true}}
	}
	return []Candidate{
		{Path: "/bin/bash", InheritEnv: true},
		{Path: "/bin/sh", InheritEnv: true},
	}
}

// Candidates returns the ordered list Resolve walks.
func (r *Resolver) Candidates() []Candidate {
	list := defaultCandidates(r.goos, r.getenv)
	if r.override != nil {
		list = append([]Candidate{*r.override}, list...)
	}
	return list
}

// Resolve returns the first candidate that exists and is not a directory.
// The filesystem is consulted on every call.
func (r *Resolver) Resolve() (Candidate, error) {
	candidates := r.Candidates()
	tried := make([]string, 0, len(candidates))

	for _, c := range candidates {
		info, err := r.stat(c.Path)
		if err == nil && !info.IsDir() {
			return c, nil
		}
		tried = append(tried, c.Path)
	}

	return Candidate{}, fmt.Errorf("%w (tried %s)", ErrNoShellAvailable, strings.Join(tried, ", "))
}
