package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	apiclient "github.com/mindriot101/dockerdeploy/pkg/api/client"
	"github.com/mindriot101/dockerdeploy/pkg/config"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "trigger":
		err = commandTrigger(args)
	case "health":
		err = commandHealth(args)
	case "webhook":
		err = commandWebhook(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	url := fs.String("url", "", "daemon base URL (default $DEPLOY_URL or http://127.0.0.1:8080)")
	return fs, url
}

func newClient(url string) (*apiclient.Client, error) {
	cfg := config.LoadClientConfig()
	base := strings.TrimSpace(url)
	if base == "" {
		base = cfg.BaseURL
	}
	return apiclient.New(base, apiclient.WithTimeout(cfg.Timeout))
}

func commandTrigger(args []string) error {
	fs, url := newFlagSet("trigger")
	fs.Parse(args)

	client, err := newClient(*url)
	if err != nil {
		return err
	}
	if err := client.Trigger(context.Background()); err != nil {
		return err
	}
	fmt.Println("redeploy queued")
	return nil
}

func commandHealth(args []string) error {
	fs, url := newFlagSet("health")
	fs.Parse(args)

	client, err := newClient(*url)
	if err != nil {
		return err
	}
	health, err := client.Health(context.Background())
	if err != nil {
		return err
	}
	if !health.OK() {
		return fmt.Errorf("daemon degraded: %s", health.Error)
	}
	fmt.Println(health.Status)
	return nil
}

func commandWebhook(args []string) error {
	fs, url := newFlagSet("webhook")
	token := fs.String("token", "", "value for the X-Gitlab-Token header")
	file := fs.StringP("file", "f", "-", "event JSON file, - for stdin")
	fs.Parse(args)

	body, err := readBody(*file)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("event body is empty")
	}

	client, err := newClient(*url)
	if err != nil {
		return err
	}
	var supplied *string
	if fs.Changed("token") {
		supplied = token
	}
	if err := client.Webhook(context.Background(), supplied, body); err != nil {
		return err
	}
	fmt.Println("event accepted")
	return nil
}

func readBody(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return data, nil
}

func printUsage() {
	fmt.Printf("deployctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	deployctl trigger [--url http://127.0.0.1:8080]
	deployctl health [--url http://127.0.0.1:8080]
	deployctl webhook [--token secret] [--file event.json] [--url http://127.0.0.1:8080]
	deployctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
