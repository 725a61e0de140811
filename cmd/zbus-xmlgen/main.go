// Command zbus-xmlgen generates Go client bindings from DBus
// introspection XML, read from a file, standard input, or a live bus
// object.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NedermanGroup/zbus"
	"github.com/NedermanGroup/zbus/gen"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

var globalArgs struct {
	UseSessionBus bool `flag:"session,Connect to the session bus instead of the system bus"`
	Verbose       bool `flag:"verbose,Enable debug logging"`
}

var generateArgs struct {
	PackageName string `flag:"package,default=bindings,Package name of the generated file"`
	OutFile     string `flag:"out,Output file path (default: standard output)"`
	Interfaces  string `flag:"interfaces,Comma-separated allow-list of interface names to generate"`
	Blocking    bool   `flag:"blocking,Generate blocking call sites instead of context-aware ones"`
	Dest        string `flag:"dest,Introspect this bus name instead of reading a file"`
	Path        string `flag:"path,default=/,Object path to introspect with --dest"`
}

var dumpArgs struct {
	Dest string `flag:"dest,Introspect this bus name instead of reading a file"`
	Path string `flag:"path,default=/,Object path to introspect with --dest"`
}

func main() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	root := &command.C{
		Name:     "zbus-xmlgen",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "generate",
				Usage: "generate [file.xml]",
				Help: `Generate Go bindings from introspection XML.

With a file argument, reads the document from that file ("-" for
standard input). With --dest, introspects a live object over the bus
instead; --path selects the object, and when the path does not
implement any requested interface the object tree below it is
searched.

The result goes to standard output unless --out names a file. A
document with no matching interfaces generates nothing.`,
				SetFlags: command.Flags(flax.MustBind, &generateArgs),
				Run:      runGenerate,
			},
			{
				Name:     "dump",
				Usage:    "dump [file.xml]",
				Help:     "Parse introspection XML and print the resulting model.",
				SetFlags: command.Flags(flax.MustBind, &dumpArgs),
				Run:      runDump,
			},
			{
				Name:  "introspect",
				Usage: "introspect dest [path]",
				Help:  "Fetch and print the raw introspection XML of a live bus object.",
				Run:   runIntrospect,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func initLog() {
	if globalArgs.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
}

// readDocument returns the introspection XML named by the command
// line: a positional file argument, standard input, or a live
// introspection call when dest is set.
func readDocument(env *command.Env, dest, path string) ([]byte, error) {
	if dest != "" {
		if len(env.Args) > 0 {
			return nil, env.Usagef("cannot combine --dest with a file argument")
		}
		ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
		defer cancel()

		conn, err := busConn()
		if err != nil {
			return nil, fmt.Errorf("connecting to bus: %w", err)
		}
		defer conn.Close()

		log.Debugf("introspecting %s %s", dest, path)
		doc, err := introspectXML(ctx, conn, dest, path)
		if err != nil {
			return nil, fmt.Errorf("introspecting %s %s: %w", dest, path, err)
		}
		return []byte(doc), nil
	}

	switch len(env.Args) {
	case 0:
		return io.ReadAll(os.Stdin)
	case 1:
		if env.Args[0] == "-" {
			return io.ReadAll(os.Stdin)
		}
		return os.ReadFile(env.Args[0])
	default:
		return nil, env.Usagef("at most one input file")
	}
}

func runGenerate(env *command.Env) error {
	initLog()

	var ifaces []string
	if generateArgs.Interfaces != "" {
		ifaces = strings.Split(generateArgs.Interfaces, ",")
	}

	doc, err := readDocument(env, generateArgs.Dest, generateArgs.Path)
	if err != nil {
		return err
	}
	if generateArgs.Dest != "" && len(ifaces) > 0 {
		// The requested interface may live further down the object
		// tree than --path.
		doc, err = findDocument(env, doc, ifaces)
		if err != nil {
			return err
		}
	}

	node, err := zbus.ParseDocument(doc)
	if err != nil {
		return err
	}
	log.Debugf("parsed %d interfaces, %d children", len(node.Interfaces), len(node.Children))

	mode := gen.CallContext
	if generateArgs.Blocking {
		mode = gen.CallBlocking
	}
	src, err := gen.Generate(node, gen.Options{
		Package:    generateArgs.PackageName,
		Interfaces: ifaces,
		Mode:       mode,
	})
	if err != nil {
		return err
	}
	if len(src) == 0 {
		log.Warn("document contains no matching interfaces, nothing to generate")
		return nil
	}

	if generateArgs.OutFile == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	log.Debugf("writing %d bytes to %s", len(src), generateArgs.OutFile)
	return os.WriteFile(generateArgs.OutFile, src, 0644)
}

// findDocument returns doc if it already declares one of the wanted
// interfaces, and otherwise searches the object tree below it.
func findDocument(env *command.Env, doc []byte, ifaces []string) ([]byte, error) {
	node, err := zbus.ParseDocument(doc)
	if err != nil {
		return nil, err
	}
	for _, iface := range node.Interfaces {
		for _, want := range ifaces {
			if iface.Name == want {
				return doc, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()

	conn, err := busConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	found, foundPath, err := findInterface(ctx, conn, generateArgs.Dest, generateArgs.Path, ifaces)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("no object under %s %s implements %s",
			generateArgs.Dest, generateArgs.Path, strings.Join(ifaces, ", "))
	}
	log.Debugf("found requested interface at %s", foundPath)
	return found, nil
}

func runDump(env *command.Env) error {
	initLog()

	doc, err := readDocument(env, dumpArgs.Dest, dumpArgs.Path)
	if err != nil {
		return err
	}
	node, err := zbus.ParseDocument(doc)
	if err != nil {
		return err
	}
	for _, iface := range node.Interfaces {
		fmt.Println(iface)
	}
	if globalArgs.Verbose {
		pretty.Println(node)
	}
	return nil
}

func runIntrospect(env *command.Env) error {
	initLog()

	var dest, path string
	switch len(env.Args) {
	case 1:
		dest, path = env.Args[0], "/"
	case 2:
		dest, path = env.Args[0], env.Args[1]
	default:
		return env.Usagef("introspect requires a destination and an optional path")
	}

	ctx, cancel := context.WithTimeout(env.Context(), time.Minute)
	defer cancel()

	conn, err := busConn()
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	doc, err := introspectXML(ctx, conn, dest, path)
	if err != nil {
		return fmt.Errorf("introspecting %s %s: %w", dest, path, err)
	}
	fmt.Println(doc)
	return nil
}
