package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNotInteractive = errors.New("cannot prompt: stdin is not a terminal")

type lineResult struct {
	line string
	err  error
}

// Prompter asks the user questions on a terminal. Reads race against the
// caller's context; a read abandoned by cancellation is handed to the next
// prompt of the same kind instead of being lost. A pending read of the other
// kind (echoed line or hidden secret) is drained and its answer dropped.
type Prompter struct {
	out         io.Writer
	reader      *bufio.Reader
	interactive bool
	styles      *Styles

	// readSecret reads without echo; nil when stdin is not a terminal.
	readSecret func() (string, error)

	// askMu serializes whole prompts (question and answer).
	askMu         sync.Mutex
	mu            sync.Mutex
	pending       chan lineResult
	pendingSecret bool
}

// NewPrompter returns a prompter reading answers from in and writing
// questions to out. When in is an *os.File it must be a terminal; other
// readers are treated as scripted input.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		out:         out,
		reader:      bufio.NewReader(in),
		interactive: true,
		styles:      NewStyles(out),
	}
	if f, ok := in.(*os.File); ok {
		fd := f.Fd()
		p.interactive = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		if isatty.IsTerminal(fd) {
			p.readSecret = func() (string, error) {
				b, err := term.ReadPassword(int(fd))
				_, _ = fmt.Fprintln(p.out)
				return string(b), err
			}
		}
	}
	return p
}

// Interactive reports whether the prompter can ask questions.
func (p *Prompter) Interactive() bool {
	return p.interactive
}

// Confirm asks a yes/no question. Anything other than y or yes is "no".
func (p *Prompter) Confirm(ctx context.Context, message string) (bool, error) {
	answer, err := p.ask(ctx, p.styles.Question.Render(message)+" [y/N] ", false)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Input asks for a line of text, returning def when the answer is blank.
func (p *Prompter) Input(ctx context.Context, label, def string) (string, error) {
	question := p.styles.Question.Render(label)
	if def != "" {
		question += " " + p.styles.Muted.Render("("+def+")")
	}
	answer, err := p.ask(ctx, question+": ", false)
	if err != nil {
		return "", err
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return def, nil
	}
	return answer, nil
}

// Secret asks for a value without echoing it when stdin is a terminal.
func (p *Prompter) Secret(ctx context.Context, label string) (string, error) {
	return p.ask(ctx, p.styles.Question.Render(label)+": ", true)
}

// Select asks the user to pick one of options by number and returns its
// index.
func (p *Prompter) Select(ctx context.Context, label string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to select from")
	}
	var sb strings.Builder
	sb.WriteString(p.styles.Question.Render(label) + "\n")
	for i, opt := range options {
		fmt.Fprintf(&sb, "  %d) %s\n", i+1, opt)
	}
	sb.WriteString("Choice [1]: ")

	answer, err := p.ask(ctx, sb.String(), false)
	if err != nil {
		return 0, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(options) {
		return 0, fmt.Errorf("invalid choice %q", answer)
	}
	return n - 1, nil
}

func (p *Prompter) ask(ctx context.Context, question string, secret bool) (string, error) {
	if !p.interactive {
		return "", ErrNotInteractive
	}
	read := p.readLine
	if secret && p.readSecret != nil {
		read = p.readSecret
	} else {
		secret = false
	}

	p.askMu.Lock()
	defer p.askMu.Unlock()

	if _, err := io.WriteString(p.out, question); err != nil {
		return "", fmt.Errorf("writing prompt: %w", err)
	}

	p.mu.Lock()
	stale, staleSecret := p.pending, p.pendingSecret
	p.mu.Unlock()
	if stale != nil && staleSecret != secret {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(p.out)
			return "", context.Cause(ctx)
		case <-stale:
		}
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
	}

	p.mu.Lock()
	if p.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := read()
			ch <- lineResult{line: line, err: err}
		}()
		p.pending, p.pendingSecret = ch, secret
	}
	ch := p.pending
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.out)
		return "", context.Cause(ctx)
	case res := <-ch:
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
		if res.err != nil {
			return "", fmt.Errorf("reading answer: %w", res.err)
		}
		return res.line, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
