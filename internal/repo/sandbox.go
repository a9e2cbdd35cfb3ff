// Package repo clones audit targets into throwaway directories and reads
// what the detectives need from them: the file manifest and git history
package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrUnsafeSource is returned for clone sources that could be read as git
// options or that use a transport other than http(s), ssh, git or file
var ErrUnsafeSource = errors.New("unsafe repository source")

var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[A-Za-z0-9._~/-]+$`)

// CloneOptions bounds a clone
type CloneOptions struct {
	Depth   int           // 0 clones full history
	Timeout time.Duration // 0 means no timeout beyond ctx
	Keep    bool          // leave the clone on disk after Close
}

// Sandbox is a working tree under audit
type Sandbox struct {
	Dir    string // Working tree root
	Source string // URL or path the tree came from
	Cloned bool   // Dir is a temporary clone owned by the sandbox

	tmpRoot string
	keep    bool
}

// Open prepares source for auditing. An existing local directory is used
// in place; anything else is validated and cloned into a temporary directory
func Open(ctx context.Context, source string, opts CloneOptions) (*Sandbox, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrUnsafeSource)
	}

	if fi, err := os.Stat(source); err == nil && fi.IsDir() {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", source, err)
		}
		return &Sandbox{Dir: abs, Source: source}, nil
	}

	if err := ValidateSource(source); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "auditor-repo-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	dir := filepath.Join(tmp, "repo")

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"clone", "--quiet", "--no-tags", "--single-branch"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	// "--" ends option parsing so the source can never be taken as a flag
	args = append(args, "--", source, dir)

	if _, err := runGit(ctx, "", args...); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, fmt.Errorf("git clone %s: %w", source, err)
	}

	return &Sandbox{Dir: dir, Source: source, Cloned: true, tmpRoot: tmp, keep: opts.Keep}, nil
}

// Close removes a temporary clone. It is a no-op for local directories
func (s *Sandbox) Close() error {
	if s == nil || !s.Cloned || s.keep || s.tmpRoot == "" {
		return nil
	}
	return os.RemoveAll(s.tmpRoot)
}

// ValidateSource accepts http(s), ssh, git and file URLs plus scp-like
// "user@host:path" references, and rejects option-like or control-bearing input
func ValidateSource(source string) error {
	if strings.HasPrefix(source, "-") {
		return fmt.Errorf("%w: %q looks like an option", ErrUnsafeSource, source)
	}
	for _, r := range source {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrUnsafeSource, source)
		}
	}
	if scpLike.MatchString(source) {
		return nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSource, err)
	}
	switch u.Scheme {
	case "https", "http", "ssh", "git":
		if u.Host == "" || strings.HasPrefix(u.Host, "-") {
			return fmt.Errorf("%w: %q has no usable host", ErrUnsafeSource, source)
		}
		return nil
	case "file":
		if u.Path == "" {
			return fmt.Errorf("%w: %q has no path", ErrUnsafeSource, source)
		}
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrUnsafeSource, u.Scheme)
	}
}

// runGit runs git with prompts disabled and returns stdout. Stderr is
// folded into the error
func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
