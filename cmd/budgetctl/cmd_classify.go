package main

import (
	"context"
	"fmt"
	"strings"

	"budgetcards/internal/cli"

	"github.com/spf13/cobra"
)

type textClassifier interface {
	Classify(ctx context.Context, text string) string
}

type classifyCommand struct {
	app           *app
	newClassifier func(ctx context.Context) (textClassifier, func())
}

func newClassifyCmd(a *app) *cobra.Command {
	cc := &classifyCommand{app: a}
	cc.newClassifier = func(ctx context.Context) (textClassifier, func()) {
		return cli.NewClassifier(ctx, a.logger, a.cfg, cli.NewChatClient(a.cfg))
	}
	return &cobra.Command{
		Use:   "classify TEXT...",
		Short: "Print the icon label for an item description",
		Long:  `Run the configured classification provider on the given text and print the resulting icon label. Failures print "other".`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  cc.run,
	}
}

func (cc *classifyCommand) run(cmd *cobra.Command, args []string) error {
	classifier, cleanup := cc.newClassifier(cmd.Context())
	defer cleanup()

	label := classifier.Classify(cmd.Context(), strings.Join(args, " "))
	fmt.Fprintln(cmd.OutOrStdout(), label)
	return nil
}
