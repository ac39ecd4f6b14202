package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// confirmProceed prompts before a download. Empty input and "y" accept,
// "n" declines cleanly, anything else is rejected.
func confirmProceed(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Do you wish to continue? Y/n: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y":
		return true, nil
	case "n":
		fmt.Fprintln(out, "Aborting...")
		return false, nil
	default:
		return false, errors.New("invalid confirmation input")
	}
}
