package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coderelay/statevault/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "get":
		runGet(ctx, os.Args[2:])
	case "set":
		runSet(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "mv":
		runMv(ctx, os.Args[2:])
	case "ls":
		runLs(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "verify":
		runVerify(ctx, os.Args[2:])
	case "migrate":
		runMigrate(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runGet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: statevault get <key>")
		os.Exit(1)
	}

	cmd.Get(ctx, fs.Arg(0))
}

func runSet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: statevault set <key> [value|-]")
		os.Exit(1)
	}

	cmd.Set(ctx, fs.Arg(0), fs.Arg(1))
}

func runRm(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Remove(ctx, fs.Args())
}

func runMv(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("mv", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: statevault mv <source-key> <destination-key>")
		os.Exit(1)
	}

	cmd.Move(ctx, fs.Arg(0), fs.Arg(1))
}

func runLs(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Ls(ctx, fs.Arg(0))
}

func runStatus(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Status(ctx)
}

func runVerify(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Verify(ctx)
}

func runMigrate(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Migrate(ctx)
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Passwd(ctx)
}

func runDiff(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: statevault diff <key> <file>")
		os.Exit(1)
	}

	cmd.Diff(ctx, fs.Arg(0), fs.Arg(1))
}

func runKeyring(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: statevault keyring <save|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "save":
		cmd.KeyringSave(ctx)
	case "delete":
		cmd.KeyringDelete()
	case "status":
		cmd.KeyringStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: statevault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("statevault - encrypted state store for the coderelay CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  statevault <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get         Print a record as JSON")
	fmt.Println("  set         Write a record from an argument or stdin")
	fmt.Println("  rm          Remove records")
	fmt.Println("  mv          Rename a record atomically")
	fmt.Println("  ls          List stored keys")
	fmt.Println("  status      Show store status and held locks")
	fmt.Println("  verify      Integrity-check every record")
	fmt.Println("  migrate     Encrypt plaintext records")
	fmt.Println("  passwd      Rotate the master passphrase")
	fmt.Println("  diff        Compare a record with a local file")
	fmt.Println("  keyring     Manage the passphrase in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  statevault set session/abc123 '{\"model\":\"gpt-4\"}'")
	fmt.Println("  statevault get session/abc123")
	fmt.Println("  statevault ls session")
	fmt.Println("  statevault migrate          # encrypt existing plaintext records")
	fmt.Println()
	fmt.Println("Use 'statevault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "get":
		fmt.Println("statevault get <key>")
		fmt.Println()
		fmt.Println("Prints the record stored under the key as indented JSON.")
		fmt.Println("Keys are slash-separated paths, e.g. session/abc123.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  statevault get auth/github")
	case "set":
		fmt.Println("statevault set <key> [value|-]")
		fmt.Println()
		fmt.Println("Writes a record. The value is taken from the argument, or from")
		fmt.Println("stdin when the argument is absent or '-'. Valid JSON is stored")
		fmt.Println("structurally; anything else is stored as a plain string.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  statevault set session/abc123 '{\"model\":\"gpt-4\"}'")
		fmt.Println("  cat session.json | statevault set session/abc123 -")
	case "rm":
		fmt.Println("statevault rm <key> [key...]")
		fmt.Println()
		fmt.Println("Removes records. Removing a key that does not exist succeeds.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  statevault rm session/abc123")
	case "mv":
		fmt.Println("statevault mv <source-key> <destination-key>")
		fmt.Println()
		fmt.Println("Renames a record. The destination write and the source removal")
		fmt.Println("are committed together in a single transaction.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  statevault mv session/draft session/abc123")
	case "ls":
		fmt.Println("statevault ls [prefix]")
		fmt.Println()
		fmt.Println("Lists stored keys, optionally restricted to a key prefix.")
		fmt.Println("Does not require a passphrase.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  statevault ls")
		fmt.Println("  statevault ls session")
	case "status":
		fmt.Println("statevault status")
		fmt.Println()
		fmt.Println("Shows the store location, encryption state, record count, last")
		fmt.Println("modification time and any currently held record locks.")
		fmt.Println()
		fmt.Println("Does not require a passphrase.")
	case "verify":
		fmt.Println("statevault verify")
		fmt.Println()
		fmt.Println("Integrity-checks every record against its checksum and the")
		fmt.Println("manifest index, without decrypting anything. Reports corrupted,")
		fmt.Println("drifted and untracked records and exits non-zero when any are")
		fmt.Println("found.")
		fmt.Println()
		fmt.Println("Does not require a passphrase.")
	case "migrate":
		fmt.Println("statevault migrate")
		fmt.Println()
		fmt.Println("Re-encrypts every plaintext record under the master passphrase.")
		fmt.Println("Prompts for a passphrase when none is configured yet; that")
		fmt.Println("passphrase becomes the store's key from then on.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  STATEVAULT_MASTER_KEY=... statevault migrate")
	case "passwd":
		fmt.Println("statevault passwd")
		fmt.Println()
		fmt.Println("Rotates the master passphrase. Every record is re-encrypted")
		fmt.Println("under fresh key derivation parameters. An existing keyring")
		fmt.Println("entry is updated with the new passphrase.")
	case "diff":
		fmt.Println("statevault diff <key> <file>")
		fmt.Println()
		fmt.Println("Compares a stored record against a local JSON file and prints a")
		fmt.Println("line diff. Exits non-zero when they differ.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  statevault diff session/abc123 ./session.json")
	case "keyring":
		fmt.Println("statevault keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Manages the master passphrase in the OS keyring, keyed by the")
		fmt.Println("store's persistent ID.")
		fmt.Println()
		fmt.Println("  save     Prompt for the passphrase, check it, store it")
		fmt.Println("  delete   Remove the stored passphrase")
		fmt.Println("  status   Report whether a passphrase is stored")
	case "completion":
		fmt.Println("statevault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(statevault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(statevault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  statevault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
