package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// readBlock collects lines until an empty one. EOF ends the block like an
// empty line does; only other read errors are returned.
func readBlock(reader *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
		if line == "" {
			return lines, nil
		}
	}
}

// GetChoice asks prompt until the answer is one of choices. Answers are
// compared case-insensitively. The prompt looks like:
//
//	Keep or delete? [keep/delete]
//	> _
func GetChoice(reader *bufio.Reader, prompt string, choices []string, w io.Writer) (string, error) {
	for {
		if _, err := fmt.Fprintf(w, "%s [%s]\n> ", prompt, strings.Join(choices, "/")); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if slices.Contains(choices, answer) {
			return answer, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// GetMultiline prints a prompt to w and reads lines until an empty one
// (Enter pressed twice). The lines are joined with '\n'.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}
	lines, err := readBlock(reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// GetMetadata reads "name=value" lines up to an empty one. The raw lines are
// returned; models.ParseAppMetaData validates them.
func GetMetadata(reader *bufio.Reader, w io.Writer) ([]string, error) {
	if _, err := fmt.Fprintln(w, "Enter app metadata as name=value (empty line to finish)"); err != nil {
		return nil, err
	}
	lines, err := readBlock(reader)
	if lines == nil {
		lines = []string{}
	}
	return lines, err
}
