// Command notify-watch follows the notification feed of one user from a
// terminal. It prints a toast for each new notification and a status line
// whenever the counts or the connection state change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/internal/notifyclient"
)

var (
	toastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	priorityColors = map[domain.Priority]lipgloss.Color{
		domain.PriorityLow:      lipgloss.Color("245"),
		domain.PriorityMedium:   lipgloss.Color("39"),
		domain.PriorityHigh:     lipgloss.Color("214"),
		domain.PriorityCritical: lipgloss.Color("196"),
	}
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "notify-watch: %v\n", err)
		os.Exit(2)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := &statusPrinter{}
	sub := notifyclient.New(notifyclient.Options{
		APIBaseURL:   cfg.APIURL,
		WSBaseURL:    cfg.WSURL,
		UserID:       cfg.UserID,
		Categories:   cfg.Categories,
		PollInterval: cfg.PollInterval,
		Token:        cfg.Token,
		EnableToasts: cfg.Toasts,
		OnToast:      func(t notifyclient.Toast) { fmt.Println(renderToast(t.Notification)) },
		OnChange:     printer.update,
		Logger:       logger,
	})
	defer sub.Close()

	if err := sub.Start(ctx); err != nil {
		logger.Warn("initial fetch failed, relying on the socket and polling", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("stopping")
}

func renderToast(n *domain.Notification) string {
	color, ok := priorityColors[n.Priority]
	if !ok {
		color = priorityColors[domain.PriorityMedium]
	}
	body := titleStyle.Render(n.Title) + "\n" +
		mutedStyle.Render(fmt.Sprintf("#%d  %s  %s  %s", n.ID, n.Category, n.Priority, n.Status))
	if n.Description != nil && *n.Description != "" {
		body += "\n" + *n.Description
	}
	return toastStyle.BorderForeground(color).Render(body)
}

// statusPrinter prints a status line when the summary changes.
type statusPrinter struct {
	mu   sync.Mutex
	last string
}

func (p *statusPrinter) update(st notifyclient.State) {
	line := summarize(st, time.Now())

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Println(statusStyle.Render(line))
}

func summarize(st notifyclient.State, now time.Time) string {
	conn := "polling"
	if st.Status.Connected {
		conn = "live"
	} else if st.Status.ReconnectAttempts > 0 {
		conn = fmt.Sprintf("reconnecting (attempt %d)", st.Status.ReconnectAttempts)
	}

	c := st.Counts(now)
	line := fmt.Sprintf("[%s] %d notifications, %d unread, %d critical, %d overdue",
		conn, len(st.Notifications), c.Unread, c.Critical, c.Overdue)
	if st.Err != "" {
		line += " | error: " + st.Err
	}
	return line
}

func initLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
