package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/studio-posts/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		token        string
		apiURL       string
		chatID       string
		keepWebhook  bool
		skipCommands bool
	)

	flag.StringVar(&token, "token", envOrDefault("TELEGRAM_BOT_TOKEN", ""), "Bot token from @BotFather")
	flag.StringVar(&apiURL, "api", envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"), "Bot API root URL")
	flag.StringVar(&chatID, "test-chat", "", "Send a test message to this chat ID")
	flag.BoolVar(&keepWebhook, "keep-webhook", false, "Do not remove a configured webhook")
	flag.BoolVar(&skipCommands, "skip-commands", false, "Do not register the command menu")
	flag.Parse()

	if token == "" {
		return fmt.Errorf("--token is required (or set TELEGRAM_BOT_TOKEN)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := telegram.NewClient(apiURL, token, 10*time.Second)

	me, err := client.GetMe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Authenticated as @%s (id %d)\n", me.Username, me.ID)

	// getUpdates is rejected while a webhook is set.
	if !keepWebhook {
		if err := client.DeleteWebhook(ctx); err != nil {
			return err
		}
		fmt.Println("Webhook removed")
	}

	if !skipCommands {
		if err := client.SetMyCommands(ctx, telegram.Commands); err != nil {
			return err
		}
		for _, c := range telegram.Commands {
			fmt.Printf("Registered /%s - %s\n", c.Command, c.Description)
		}
	}

	if chatID != "" {
		if err := telegram.NewChatNotifier(client, chatID).Notify(ctx, "Test message from botctl"); err != nil {
			return err
		}
		fmt.Printf("Test message sent to %s\n", chatID)
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
