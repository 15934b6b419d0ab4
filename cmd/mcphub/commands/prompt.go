package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"
)

// Test seams for the terminal
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var stdin io.Reader = os.Stdin

// promptPassword reads a password without echo. When stdin is not a
// terminal the first line of stdin is used, so scripts can pipe it in.
func promptPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if stdin != os.Stdin || !isTerminal(fd) {
		line, err := readLine(stdin)
		if err != nil {
			return "", errors.Wrap(err, "reading password")
		}
		return line, nil
	}

	fmt.Fprint(w, prompt)
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pw), nil
}

// confirm asks a yes/no question; anything but y or yes is no
func confirm(w io.Writer, r io.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	line, err := readLine(r)
	if err != nil {
		return false
	}
	answer := strings.ToLower(line)
	return answer == "y" || answer == "yes"
}

// lineReaders keeps one buffered reader per source so that consecutive
// prompts do not lose buffered input
var lineReaders = map[io.Reader]*bufio.Reader{}

func readLine(r io.Reader) (string, error) {
	br, ok := lineReaders[r]
	if !ok {
		br = bufio.NewReader(r)
		lineReaders[r] = br
	}
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
