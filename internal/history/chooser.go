package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrInvalidChoice is returned when the selected index is out of range.
var ErrInvalidChoice = errors.New("invalid commit choice")

// CommitChooser picks the commit to restore from a bounded list of candidates.
type CommitChooser interface {
	Choose(candidates []Commit) (Commit, error)
}

// PromptChooser lists the candidates on Out and reads an index from In.
type PromptChooser struct {
	In  io.Reader
	Out io.Writer
}

// Choose prints "(i)  <hash>  <subject>" per candidate and reads a number
// between 0 and min(len-1, 9).
func (p PromptChooser) Choose(candidates []Commit) (Commit, error) {
	if len(candidates) == 0 {
		return Commit{}, ErrNoCommits
	}
	highest := min(len(candidates)-1, DefaultRecent-1)

	for i, c := range candidates[:highest+1] {
		fmt.Fprintf(p.Out, "(%d)  %s  %s\n", i, c.Hash, c.Subject())
	}
	fmt.Fprint(p.Out, "Press number corresponding to which commit you'd like to load the state from: ")

	scanner := bufio.NewScanner(p.In)
	if !scanner.Scan() {
		return Commit{}, fmt.Errorf("%w: no input received", ErrInvalidChoice)
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || n < 0 || n > highest {
		return Commit{}, fmt.Errorf("%w: enter a value between 0-%d", ErrInvalidChoice, highest)
	}
	return candidates[n], nil
}

// FixedChooser always picks the candidate at its index.
type FixedChooser int

// Choose returns candidates[i].
func (f FixedChooser) Choose(candidates []Commit) (Commit, error) {
	i := int(f)
	if i < 0 || i >= len(candidates) {
		return Commit{}, fmt.Errorf("%w: index %d of %d", ErrInvalidChoice, i, len(candidates))
	}
	return candidates[i], nil
}
