package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/opencta/quant/pkg/config"
	"github.com/opencta/quant/pkg/httputil"
	"github.com/opencta/quant/pkg/logger"
)

// Notifier sends trade alerts.
type Notifier interface {
	NotifyTrade(ctx context.Context, spread string, positions map[string]float64) error
}

// NopNotifier discards alerts; used for backtests.
type NopNotifier struct{}

func (NopNotifier) NotifyTrade(context.Context, string, map[string]float64) error { return nil }

// SMSNotifier posts trade alerts to a Twilio-style messaging endpoint.
type SMSNotifier struct {
	http    *httputil.Client
	baseURL string
	sid     string
	from    string
	to      string
	logger  *logger.Logger
}

// NewSMSNotifier creates a notifier from the notify config.
func NewSMSNotifier(cfg config.NotifyConfig, log *logger.Logger) *SMSNotifier {
	httpClient := httputil.New(log).
		WithHeader("Authorization", "Basic "+basicAuth(cfg.AccountSID, cfg.AuthToken))
	return &SMSNotifier{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		sid:     cfg.AccountSID,
		from:    cfg.From,
		to:      cfg.To,
		logger:  log,
	}
}

// NotifyTrade sends a "new trade" message listing the non-zero positions.
func (n *SMSNotifier) NotifyTrade(ctx context.Context, spread string, positions map[string]float64) error {
	lines := []string{fmt.Sprintf("[INFO] New trade for %s", spread)}
	tickers := make([]string, 0, len(positions))
	for ticker, quantity := range positions {
		if quantity != 0 {
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)
	for _, ticker := range tickers {
		lines = append(lines, fmt.Sprintf("%s: %g", ticker, positions[ticker]))
	}

	form := url.Values{}
	form.Set("From", n.from)
	form.Set("To", n.to)
	form.Set("Body", strings.Join(lines, "\n"))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", n.baseURL, n.sid)
	resp, err := n.http.PostForm(ctx, endpoint, form)
	if err != nil {
		return fmt.Errorf("send trade alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("send trade alert: status %d", resp.StatusCode)
	}

	n.logger.WithField("spread", spread).Info("Trade alert sent")
	return nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
