// Command dbuskit is the protocol-declaration generator: it reads a
// D-Bus introspection XML document and writes a generated Go facade
// for one of its interfaces to standard output.
//
// Exit codes: 0 on success, 1 if the document failed to parse, 2 on
// any I/O failure (reading the input, writing the output).
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	dbus "github.com/gnustep/dbuskit"
	"github.com/gnustep/dbuskit/internal/protogen"
)

var rootArgs struct {
	Package   string `flag:"package,default=client,Package name for the generated facade"`
	Interface string `flag:"interface,Name of the interface to generate; defaults to the first one found"`
}

func main() {
	root := &command.C{
		Name:  "dbuskit",
		Usage: "dbuskit [options] [introspection.xml]",
		Help: `Generate a Go protocol facade from a D-Bus introspection XML document.

Reads the document from the path given as the argument, or from standard
input when no argument is given, and writes the generated Go source to
standard output. Exits 0 on success, 1 if the document does not parse as
valid introspection XML, 2 on any I/O failure.`,
		SetFlags: command.Flags(flax.MustBind, &rootArgs),
		Run:      runGenerate,
	}

	ctx := context.Background()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

// runGenerate implements the CLI's one job. It calls os.Exit directly
// with the exit code the parse/I-O distinction requires instead of
// returning an error for command.RunOrFail's generic handling, since
// that path only has one exit code to give a failure.
func runGenerate(env *command.Env) error {
	doc, err := readInput(env.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dbuskit:", err)
		os.Exit(2)
	}

	ifaces, _, err := dbus.ParseInterfaces(doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dbuskit:", err)
		os.Exit(1)
	}
	if len(ifaces) == 0 {
		fmt.Fprintln(os.Stderr, "dbuskit: introspection document declares no interfaces")
		os.Exit(1)
	}

	iface := ifaces[0]
	if rootArgs.Interface != "" {
		iface = nil
		for _, f := range ifaces {
			if f.Name() == rootArgs.Interface {
				iface = f
				break
			}
		}
		if iface == nil {
			fmt.Fprintf(os.Stderr, "dbuskit: no interface named %q in document\n", rootArgs.Interface)
			os.Exit(1)
		}
	}

	code, err := protogen.Interface(rootArgs.Package, iface)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dbuskit:", err)
		os.Exit(1)
	}

	if _, err := io.WriteString(os.Stdout, code); err != nil {
		fmt.Fprintln(os.Stderr, "dbuskit:", err)
		os.Exit(2)
	}
	return nil
}

// readInput reads the introspection document from args[0] when
// present, or from standard input otherwise, per the CLI's single
// positional argument.
func readInput(args []string) (string, error) {
	if len(args) == 0 {
		bs, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading standard input: %w", err)
		}
		return string(bs), nil
	}
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one argument, got %d", len(args))
	}
	bs, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(bs), nil
}
