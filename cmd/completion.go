package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_statevault() {
    local cur prev words cword
    _init_completion || return

    local commands="get set rm mv ls status verify migrate passwd diff keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        get|rm|mv|diff)
            # Complete with stored keys
            local keys
            keys=$(statevault ls 2>/dev/null)
            COMPREPLY=($(compgen -W "$keys" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _statevault statevault
`

const zshCompletion = `#compdef statevault

_statevault() {
    local -a commands
    commands=(
        'get:Print a record as JSON'
        'set:Write a record'
        'rm:Remove records'
        'mv:Rename a record atomically'
        'ls:List stored keys'
        'status:Show store status'
        'verify:Integrity-check every record'
        'migrate:Encrypt plaintext records'
        'passwd:Rotate the master passphrase'
        'diff:Compare a record with a local file'
        'keyring:Manage passphrase in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'statevault commands' commands
            ;;
        args)
            case "${words[2]}" in
                get|rm|mv|diff)
                    _arguments '*:key:_statevault_keys'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'statevault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_statevault_keys() {
    local -a keys
    keys=(${(f)"$(statevault ls 2>/dev/null)"})
    _describe -t keys 'stored keys' keys
}

_statevault "$@"
`

const fishCompletion = `# statevault fish completions

set -l commands get set rm mv ls status verify migrate passwd diff keyring help completion

complete -c statevault -f

# Commands
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a get -d 'Print a record as JSON'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a set -d 'Write a record'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove records'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a mv -d 'Rename a record atomically'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List stored keys'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show store status'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a verify -d 'Integrity-check records'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a migrate -d 'Encrypt plaintext records'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Rotate master passphrase'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare record with file'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage passphrase in OS keyring'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c statevault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# Key completions
complete -c statevault -n "__fish_seen_subcommand_from get rm mv diff" -a "(statevault ls 2>/dev/null)"

# keyring subcommands
complete -c statevault -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c statevault -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c statevault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
