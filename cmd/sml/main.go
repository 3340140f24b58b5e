// Command sml derives, formats, and interactively evaluates shape
// grammars.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
	"github.com/peterh/liner"
	"github.com/pkg/profile"

	shapeml "github.com/stefalie/shapeml-sub000"
)

const (
	appName     = "sml"
	historyFile = ".sml_history"
	promptMain  = "sml> "
	promptCont  = "...> "
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

type cli struct {
	LogLevel string           `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	Profile  string           `help:"Write a profile to the working directory." enum:",cpu,mem" default:""`
	Version  kong.VersionFlag `help:"Print the version and exit."`

	Derive deriveCmd `cmd:"" help:"Derive a grammar and dump the shape tree."`
	Fmt    fmtCmd    `cmd:"" help:"Reprint a grammar in canonical form."`
	Repl   replCmd   `cmd:"" help:"Evaluate expressions interactively."`
}

func main() {
	var c cli
	ktx := kong.Parse(&c,
		kong.Name(appName),
		kong.Description("A shape grammar interpreter."),
		kong.UsageOnError(),
		kong.Vars{"version": appName + " " + shapeml.Version},
	)
	setupLogging(c.LogLevel)

	stop := startProfile(c.Profile)
	err := ktx.Run()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func startProfile(mode string) (stop func()) {
	switch mode {
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop
	}
	return func() {}
}

// fail prints one command failure, with source context when the error
// carries a location.
func fail(err error, sources map[string]string) error {
	msg := strings.TrimRight(shapeml.FormatErrorSnippet(err, sources), "\n")
	fmt.Fprintln(os.Stderr, red(msg))
	return err
}

// -----------------------------------------------------------------------------
// derive
// -----------------------------------------------------------------------------

type deriveCmd struct {
	Grammar  string            `arg:"" optional:"" help:"Grammar file." type:"existingfile"`
	Manifest string            `help:"YAML manifest with grammar, axiom, seed, steps, and params." type:"existingfile"`
	Axiom    string            `help:"Start symbol." default:"Axiom"`
	Seed     int64             `help:"Random seed." default:"0"`
	Steps    int               `help:"Derivation step limit, 0 for the default." default:"0"`
	Param    map[string]string `help:"Parameter overrides (name=value,...)." mapsep:","`
	Out      string            `help:"Write the tree dump to a file instead of stdout." placeholder:"FILE"`
}

// manifest mirrors the derive flags so a run is reproducible from one
// YAML file. Explicit flags win over manifest entries.
type manifest struct {
	Grammar string            `yaml:"grammar"`
	Axiom   string            `yaml:"axiom"`
	Seed    *int64            `yaml:"seed"`
	Steps   *int              `yaml:"steps"`
	Params  map[string]string `yaml:"params"`
}

func (c *deriveCmd) applyManifest(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("cannot parse manifest %s: %w", path, err)
	}
	if c.Grammar == "" && m.Grammar != "" {
		c.Grammar = m.Grammar
		if !filepath.IsAbs(c.Grammar) {
			c.Grammar = filepath.Join(filepath.Dir(path), c.Grammar)
		}
	}
	if c.Axiom == "Axiom" && m.Axiom != "" {
		c.Axiom = m.Axiom
	}
	if c.Seed == 0 && m.Seed != nil {
		c.Seed = *m.Seed
	}
	if c.Steps == 0 && m.Steps != nil {
		c.Steps = *m.Steps
	}
	for k, v := range m.Params {
		if _, set := c.Param[k]; !set {
			if c.Param == nil {
				c.Param = make(map[string]string)
			}
			c.Param[k] = v
		}
	}
	return nil
}

func (c *deriveCmd) Run() error {
	if c.Manifest != "" {
		if err := c.applyManifest(c.Manifest); err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return err
		}
	}
	if c.Grammar == "" {
		err := errors.New("no grammar file; pass one as an argument or through --manifest")
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return err
	}

	g, sources, err := shapeml.LoadGrammar(c.Grammar)
	if err != nil {
		return fail(err, sources)
	}

	ses, err := shapeml.NewSession(g, shapeml.Config{
		Seed:   c.Seed,
		Params: parseOverrides(c.Param),
	})
	if err != nil {
		return fail(err, sources)
	}

	// First interrupt stops the derivation at the next generation; the
	// process keeps running to dump what exists.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ses.Cancel()
	}()

	tree, root, err := ses.Derive(c.Axiom, c.Steps)
	if err != nil {
		return fail(err, sources)
	}

	out := io.Writer(os.Stdout)
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return err
		}
		defer f.Close()
		out = f
	}
	return tree.Dump(out, root)
}

// parseOverrides converts name=value strings to typed values: bool and
// number literals get their natural kind, everything else stays a string.
func parseOverrides(raw map[string]string) map[string]shapeml.Value {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]shapeml.Value, len(raw))
	for name, s := range raw {
		out[name] = parseOverrideValue(s)
	}
	return out
}

func parseOverrideValue(s string) shapeml.Value {
	switch s {
	case "true":
		return shapeml.BoolVal(true)
	case "false":
		return shapeml.BoolVal(false)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return shapeml.IntVal(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return shapeml.FloatVal(f)
	}
	return shapeml.StringVal(s)
}

// -----------------------------------------------------------------------------
// fmt
// -----------------------------------------------------------------------------

type fmtCmd struct {
	Grammar string `arg:"" help:"Grammar file." type:"existingfile"`
	Write   bool   `help:"Rewrite the file in place." short:"w"`
	Check   bool   `help:"Exit 1 when the file is not canonical."`
}

func (c *fmtCmd) Run() error {
	g, sources, err := shapeml.LoadGrammar(c.Grammar)
	if err != nil {
		return fail(err, sources)
	}
	canonical := g.String()

	if c.Check {
		raw, err := os.ReadFile(c.Grammar)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return err
		}
		if string(raw) != canonical {
			fmt.Printf("%s is not canonical\n", c.Grammar)
			return errors.New("not canonical")
		}
		return nil
	}
	if c.Write {
		return os.WriteFile(c.Grammar, []byte(canonical), 0o644)
	}
	_, err = fmt.Print(canonical)
	return err
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

type replCmd struct {
	Grammar string `arg:"" optional:"" help:"Grammar whose parameters, constants, and functions are in scope." type:"existingfile"`
	Seed    int64  `help:"Random seed." default:"0"`
}

func (c *replCmd) Run() error {
	g := shapeml.NewGrammar()
	sources := map[string]string{}
	if c.Grammar != "" {
		var err error
		if g, sources, err = shapeml.LoadGrammar(c.Grammar); err != nil {
			return fail(err, sources)
		}
	}
	ses, err := shapeml.NewSession(g, shapeml.Config{Seed: c.Seed})
	if err != nil {
		return fail(err, sources)
	}

	fmt.Printf("ShapeML %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :quit to exit.\n", shapeml.Version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			return nil
		}

		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			switch strings.ToLower(trimmed) {
			case ":quit", ":q":
				return nil
			default:
				fmt.Println("unknown command. Type :quit to exit.")
			}
			continue
		}

		v, err := ses.EvalString(code)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			continue
		}
		fmt.Println(v.String())
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
}

// readByParseProbe reads one expression, prompting for continuation lines
// while a parse probe of the accumulated input reports it incomplete. The
// second return is false on EOF; Ctrl+C abandons the buffer and returns it
// empty.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, true
		}
		_, perr := shapeml.ParseExprInteractive(src)
		if shapeml.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}
