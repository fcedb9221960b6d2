package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/ticketyard/internal/config"
	"github.com/zulandar/ticketyard/internal/store"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and edit persisted session records",
		Long:  "Session records bind Discord messages to ticket panels and intake forms. Kinds: notifications, tickets, ticket_forms.",
	}

	cmd.AddCommand(newRecordsListCmd())
	cmd.AddCommand(newRecordsPruneCmd())
	return cmd
}

func newRecordsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List the records of a kind in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	return cmd
}

func newRecordsPruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune <kind> <message-id>...",
		Short: "Remove records by host message ID",
		Long:  "Removes records of a kind whose host message ID matches. The bot re-reads records only on start, so prune while it is stopped.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsPrune(cmd, configPath, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ticketyard.yaml", "path to Ticketyard config file")
	return cmd
}

// openStore loads the config and opens its store with a quiet logger.
func openStore(cmd *cobra.Command, configPath string) (store.Store, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cmd.ErrOrStderr(), "warn")
	if err != nil {
		return nil, nil, err
	}
	st, closeFn, err := store.Open(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, closeFn, nil
}

func runRecordsList(cmd *cobra.Command, configPath, kindArg string) error {
	kind, err := store.ParseKind(kindArg)
	if err != nil {
		return err
	}
	st, closeFn, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	recs, err := st.LoadAll(context.Background(), kind)
	if err != nil {
		return err
	}
	writeRecords(cmd.OutOrStdout(), kind, recs)
	return nil
}

func writeRecords(out io.Writer, kind store.Kind, recs []store.Record) {
	if len(recs) == 0 {
		fmt.Fprintf(out, "No %s records.\n", kind)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tCHANNEL\tDETAIL")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.MessageID, r.ChannelID, recordDetail(kind, r))
	}
	w.Flush()
	fmt.Fprintf(out, "%d %s record(s)\n", len(recs), kind)
}

func recordDetail(kind store.Kind, r store.Record) string {
	switch kind {
	case store.KindNotification:
		return "ticket=" + r.TicketChannelID
	case store.KindTicket:
		if r.NotificationChannelID != "" {
			return fmt.Sprintf("notification=%s in %s", r.NotificationID, r.NotificationChannelID)
		}
		return "notification=" + r.NotificationID
	case store.KindIntakeForm:
		return fmt.Sprintf("prefix=%s style=%s label=%q", r.ChannelPrefix, r.Style, r.Label)
	}
	return ""
}

func runRecordsPrune(cmd *cobra.Command, configPath, kindArg string, ids []string) error {
	kind, err := store.ParseKind(kindArg)
	if err != nil {
		return err
	}
	st, closeFn, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	before, err := st.LoadAll(ctx, kind)
	if err != nil {
		return err
	}
	if err := st.RemoveByHostMessageID(ctx, kind, ids...); err != nil {
		return err
	}
	after, err := st.LoadAll(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d %s record(s), %d left\n", len(before)-len(after), kind, len(after))
	return nil
}
