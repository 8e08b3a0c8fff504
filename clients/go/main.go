// serverchat CLI - command line client for the chat server
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aswatji/serverchat/clients/go/serverchat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := serverchat.NewClient(os.Getenv("SERVERCHAT_URL"))
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "users":
		users, err := client.ListUsers(ctx)
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  %s  %s <%s>\n", u.ID, u.Name, u.Email)
		}

	case "create-user":
		requireArgs(4, "serverchat create-user <name> <email>")
		user, err := client.CreateUser(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Created user: %s\n", user.ID)

	case "chats":
		requireArgs(3, "serverchat chats <user_id>")
		chats, err := client.ListChats(ctx, os.Args[2])
		exitOnError(err)
		for _, ch := range chats {
			fmt.Printf("  %s  with %s\n", ch.ID, ch.Partner(os.Args[2]))
		}

	case "chat":
		requireArgs(4, "serverchat chat <user_id> <user_id>")
		chat, err := client.StartChat(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Chat: %s\n", chat.ID)

	case "send":
		requireArgs(5, "serverchat send <chat_id> <sender_id> <message>")
		msg, err := client.SendMessage(ctx, os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "history":
		requireArgs(3, "serverchat history <chat_id> [page]")
		page := 1
		if len(os.Args) > 3 {
			if p, err := strconv.Atoi(os.Args[3]); err == nil {
				page = p
			}
		}
		messages, err := client.GetMessages(ctx, os.Args[2], page, 20)
		exitOnError(err)
		for _, msg := range messages {
			from := msg.SenderID
			if msg.Sender != nil && msg.Sender.Name != "" {
				from = msg.Sender.Name
			}
			fmt.Printf("[%s] %s: %s\n", msg.SentAt.Local().Format("2006-01-02 15:04:05"), from, msg.Content)
		}

	case "listen":
		requireArgs(3, "serverchat listen <chat_id>")
		stream, err := client.Dial(ctx)
		exitOnError(err)
		go func() {
			<-ctx.Done()
			stream.Close()
		}()
		exitOnError(stream.Join(os.Args[2]))
		for {
			env, err := stream.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				exitOnError(err)
			}
			fmt.Printf("%s %s\n", env.Event, string(env.Data))
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`serverchat CLI - two-party chat client

Usage: serverchat <command> [options]

Commands:
  create-user <name> <email>        Register a user
  users                             List users
  chat <user_id> <user_id>          Start or fetch a chat
  chats <user_id>                   List a user's chats
  send <chat_id> <sender_id> <msg>  Send a message
  history <chat_id> [page]          Read chat history
  listen <chat_id>                  Stream realtime events for a chat
  health                            Check server health

Environment:
  SERVERCHAT_URL   Server URL (default: http://localhost:8080)`)
}

func requireArgs(n int, usage string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, "Usage:", usage)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
