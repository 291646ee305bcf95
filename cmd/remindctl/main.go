// Command remindctl runs reminder passes and inspects notifications from the
// shell, against the same store and lock as the daemon.
//
//	remindctl run          send every due reminder once
//	remindctl list         print all notifications with their reminder state
//	remindctl state <id>   print one notification
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/app"
	"github.com/aliskhannn/shipping-reminder/internal/config"
	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

func main() {
	asJSON := flag.Bool("json", false, "print JSON instead of a table")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-json] run|list|state <id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()

	if cfg.Lock.Driver == "memory" {
		zlog.Logger.Warn().Msg("lock driver is memory: a daemon running at the same time may send the same reminder")
	}

	a, err := app.New(ctx, cfg, app.Options{Events: true})
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialise application")
	}
	defer a.Close()

	if err := run(ctx, a, cfg, flag.Args(), *asJSON, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "remindctl:", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cfg *config.Config, args []string, asJSON bool, out io.Writer) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "run":
		sent, err := a.Reminders.RunDueReminders(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(out).Encode(map[string]int{"sent": sent})
		}
		_, err = fmt.Fprintf(out, "reminders sent: %d\n", sent)
		return err

	case "list":
		views, err := a.Notifications.GetAllNotifications(ctx, cfg.Retry)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(out).Encode(views)
		}
		return printTable(out, views)

	case "state":
		if len(args) != 2 {
			return errors.New("usage: state <id>")
		}
		view, err := a.Notifications.GetNotification(ctx, cfg.Retry, args[1])
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return fmt.Errorf("notification %s not found", args[1])
		}
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(out).Encode(view)
		}
		return printTable(out, []model.NotificationView{view})

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printTable(out io.Writer, views []model.NotificationView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tPHONE\tCREATED\tHOURS\tSTATE\tDUE\tSENT")

	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\t%s\t%s\n",
			v.ID, v.CustomerName, v.PhoneNumber, v.CreatedAt.Format(time.DateTime),
			v.ReminderHours, v.State, formatTime(v.DueAt), formatTime(v.ReminderSentAt))
	}

	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}
