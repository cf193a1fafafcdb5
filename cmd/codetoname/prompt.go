package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fyrsmithlabs/codetoname/internal/config"
)

// readPassword reads a line without echo. Replaced in tests.
var readPassword = func() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal; set CODETONAME_GITHUB_TOKEN or github.token")
	}
	return term.ReadPassword(fd)
}

// promptCredentials asks for a GitHub account and password and stores them
// in g. An empty account keeps the client anonymous.
func promptCredentials(in io.Reader, out io.Writer, g *config.GitHubConfig) error {
	fmt.Fprint(out, "GitHub account (empty for anonymous): ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read account: %w", err)
	}
	username := strings.TrimSpace(line)
	if username == "" {
		return nil
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return errors.New("password is required")
	}

	g.Username = username
	g.Password = config.Secret(password)
	return nil
}
