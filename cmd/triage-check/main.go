package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/di"
	"github.com/mikey/llm-inbox-triage/internal/utils"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(
		flags *di.CLIFlags,
		logger *zap.Logger,
		service *core.TriageService,
		classifier core.Classifier,
		patterns store.Store,
	) error {
		defer logger.Sync()
		defer patterns.Stop()
		if closer, ok := classifier.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		return check(flags, logger, service)
	}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func check(flags *di.CLIFlags, logger *zap.Logger, service *core.TriageService) error {
	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		defer file.Close()
		emailReader = file
		logger.Debug("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Debug("Reading email from stdin")
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		return fmt.Errorf("parse email: %w", err)
	}

	body, err := utils.ExtractTextFromMessage(msg)
	if err != nil {
		return fmt.Errorf("read email body: %w", err)
	}

	email := &core.Email{
		ID:      msg.Header.Get("Message-Id"),
		From:    utils.DecodeHeader(msg.Header.Get("From")),
		Subject: utils.DecodeHeader(msg.Header.Get("Subject")),
		Body:    body,
		Headers: make(map[string][]string),
	}
	if to, err := msg.Header.AddressList("To"); err == nil {
		for _, a := range to {
			email.To = append(email.To, a.Address)
		}
	}
	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date
	}
	for k, v := range msg.Header {
		email.Headers[k] = v
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.From)
	fmt.Printf("To: %s\n", strings.Join(email.To, ", "))
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(body))

	startTime := time.Now()
	dc, err := service.Decide(context.Background(), flags.AccountID, email, nil)
	if err != nil {
		return err
	}

	action := core.ActionKept
	if dc.Disposal {
		action = core.ActionDeleted
	}

	fmt.Printf("\n=== Decision ===\n")
	fmt.Printf("Sender: %s (%s)\n", dc.SenderEmail, dc.SenderDomain)
	fmt.Printf("Label: %s\n", dc.Verdict.String())
	fmt.Printf("Origin: %s\n", dc.Origin)
	fmt.Printf("Pre-categorized: %t\n", dc.PreCategorized)
	fmt.Printf("Action: %s\n", action)
	fmt.Printf("Processing time: %v\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}
