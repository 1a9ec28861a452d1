package cli

import (
	"context"
	"fmt"
	"strings"
)

func (a *App) prompt() string {
	if a.isLoggedIn() {
		return fmt.Sprintf("tcli (%s)> ", a.email)
	}
	return "tcli> "
}

// Root runs the command loop until exit or end of input.
func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to tokenauth CLI (type 'help' for commands)")

	for {
		fmt.Fprint(a.out, a.prompt())
		line, err := a.reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}

		switch parts[0] {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: me, refresh, tokens, login, register, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: register, login, exit")
			}
		case "register":
			a.Register(ctx)
		case "login":
			a.Login(ctx)
		case "refresh":
			a.Refresh(ctx)
		case "me":
			a.Me(ctx)
		case "tokens":
			a.Tokens()
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", parts[0])
		}

		if err != nil {
			return
		}
	}
}
