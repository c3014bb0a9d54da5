package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// consoleInput prompts the operator for provisioning values on the
// terminal. Values already supplied by flags or the config file are not
// asked for again.
type consoleInput struct {
	rl  *readline.Instance
	cfg *Config
}

func newConsoleInput(cfg *Config) (*consoleInput, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cart> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &consoleInput{rl: rl, cfg: cfg}, nil
}

// Close releases the terminal.
func (c *consoleInput) Close() {
	_ = c.rl.Close()
}

// VenueID returns the venue identifier, prompting when needed.
func (c *consoleInput) VenueID(ctx context.Context) (string, error) {
	if c.cfg.Venue != "" {
		return c.cfg.Venue, nil
	}
	return c.ask(ctx, "Venue id: ")
}

// ActivationDetails returns the operator-issued activation values,
// prompting for each missing one.
func (c *consoleInput) ActivationDetails(ctx context.Context) (string, string, string, error) {
	deviceID := c.cfg.DeviceID
	username := c.cfg.Username
	password := c.cfg.Password

	var err error
	if deviceID == "" {
		if deviceID, err = c.ask(ctx, "Cart id: "); err != nil {
			return "", "", "", err
		}
	}
	if username == "" {
		if username, err = c.ask(ctx, "MQTT username: "); err != nil {
			return "", "", "", err
		}
	}
	if password == "" {
		if password, err = c.ask(ctx, "MQTT password: "); err != nil {
			return "", "", "", err
		}
	}
	return deviceID, username, password, nil
}

// ask reads one line. Readline blocks without taking a context, so the
// read runs on its own goroutine and a cancel abandons it.
func (c *consoleInput) ask(ctx context.Context, prompt string) (string, error) {
	type result struct {
		line string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		c.rl.SetPrompt(prompt)
		line, err := c.rl.Readline()
		results <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case r := <-results:
		if r.err == readline.ErrInterrupt {
			return "", context.Canceled
		}
		if r.err != nil {
			return "", r.err
		}
		return r.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
