package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parleyhq/parley/pkg/conversation"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/v1/assistant", "assistant endpoint URL")
	threadID := flag.String("thread", "", "existing thread id to resume")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *endpoint, *threadID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, endpoint, threadID string) error {
	seen := 0
	conv := conversation.New(conversation.Config{
		Endpoint:   endpoint,
		ThreadID:   threadID,
		OnToolCall: runTool,
		OnChange: func(snap conversation.Snapshot) {
			for _, msg := range snap.Messages[seen:] {
				render(msg)
			}
			seen = len(snap.Messages)
		},
	})

	fmt.Println("parley - interactive assistant chat")
	fmt.Println("Type /quit to exit.")
	fmt.Println()

	announced := threadID != ""
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := conv.SubmitMessage(ctx, input, nil); err != nil {
			if errors.Is(err, conversation.ErrEmptyResponseBody) {
				fmt.Fprintln(os.Stderr, "error: the assistant sent an empty response")
				continue
			}
			return err
		}
		if err := conv.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if !announced && conv.ThreadID() != "" {
			fmt.Printf("(thread %s)\n", conv.ThreadID())
			announced = true
		}
		if ctx.Err() != nil {
			fmt.Println("Interrupted")
			return nil
		}

		fmt.Println()
	}
}

func render(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleAssistant:
		if msg.Content != "" {
			fmt.Printf("assistant> %s\n", msg.Content)
		}
	case conversation.RoleData:
		fmt.Printf("data> %s\n", msg.Data)
	case conversation.RoleTool:
		if len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				names[i] = call.Function.Name
			}
			fmt.Printf("[running tools: %s]\n", strings.Join(names, ", "))
		}
	}
}

// runTool executes the built-in demo tools.
func runTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	switch name {
	case "local_time":
		return time.Now().Format(time.RFC1123), nil
	case "echo":
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("decode echo arguments: %w", err)
		}
		return args.Text, nil
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}
